package irq

import "fmt"

// ModemIRQ is the pair of raw interrupt entry points exposed by the modem
// library. Both must be called from interrupt context.
type ModemIRQ interface {
	ApplicationIRQ()
	IPCIRQ()
}

// Installer is the part of Controller the bridge needs.
type Installer interface {
	Install(line Line, prio Priority, handler Handler) error
}

// InstallModemLines wires the modem's two interrupt lines to its IRQ entry
// points. Each handler forwards the event and then signals w, so a task
// parked on modem progress is made runnable. The application line goes in
// first at P4, then the IPC line at P0; both must be in place before the
// modem is initialized.
func InstallModemLines(ctrl Installer, m ModemIRQ, w *Waker) error {
	if err := ctrl.Install(LineApplication, P4, func() {
		m.ApplicationIRQ()
		w.Signal()
	}); err != nil {
		return fmt.Errorf("install %s line: %w", LineApplication, err)
	}

	if err := ctrl.Install(LineIPC, P0, func() {
		m.IPCIRQ()
		w.Signal()
	}); err != nil {
		return fmt.Errorf("install %s line: %w", LineIPC, err)
	}

	return nil
}
