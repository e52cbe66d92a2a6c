package sim

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/autopeer-io/cellink/internal/modem"
)

// Functional modes accepted by AT+CFUN=<n>.
var validCFUN = map[int]bool{0: true, 1: true, 4: true, 20: true, 21: true, 30: true, 31: true, 40: true, 41: true, 44: true}

// engine is the AT command interpreter. It is only touched by the
// co-processor goroutine.
type engine struct {
	cfun         int
	mode         modem.SystemMode
	manufacturer string
	model        string
	imei         string
	signal       func() int32
}

// execute runs every command of a frame and returns the concatenated
// formatted responses.
func (e *engine) execute(frame []byte) string {
	cmds := modem.SplitCommands(frame)
	if len(cmds) == 0 {
		return modem.ResultER + modem.CRLF
	}
	var b strings.Builder
	for _, c := range cmds {
		b.WriteString(e.command(c))
	}
	return b.String()
}

func ok(lines ...string) string {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString(modem.CRLF)
	}
	b.WriteString(modem.ResultOK)
	b.WriteString(modem.CRLF)
	return b.String()
}

func fail() string {
	return modem.ResultER + modem.CRLF
}

func (e *engine) command(cmd string) string {
	upper := strings.ToUpper(cmd)
	switch {
	case upper == "AT":
		return ok()
	case upper == "AT+CFUN?":
		return ok(fmt.Sprintf("+CFUN: %d", e.cfun))
	case strings.HasPrefix(upper, "AT+CFUN="):
		n, err := strconv.Atoi(strings.TrimPrefix(upper, "AT+CFUN="))
		if err != nil || !validCFUN[n] {
			return fail()
		}
		e.cfun = n
		return ok()
	case upper == "AT+CGMI":
		return ok(e.manufacturer)
	case upper == "AT+CGMM":
		return ok(e.model)
	case upper == "AT+CGSN":
		return ok(e.imei)
	case upper == "AT+CESQ":
		return ok(e.cesq())
	case upper == "AT%XSYSTEMMODE?":
		return ok("%XSYSTEMMODE: " + e.mode.String())
	default:
		return fail()
	}
}

// registered reports whether the radio is on.
func (e *engine) registered() bool {
	return e.cfun == 1 || e.cfun == 21
}

// cesq renders +CESQ with the RSRQ and RSRP indexes filled in; the GSM and
// UTRAN fields are always "not known".
func (e *engine) cesq() string {
	if !e.registered() {
		return "+CESQ: 99,99,255,255,255,255"
	}
	rsrp := rsrpIndex(e.signal())
	return fmt.Sprintf("+CESQ: 99,99,255,255,%d,%d", 31, rsrp)
}

// rsrpIndex maps dBm to the 3GPP RSRP index: -140 dBm is 0, -44 dBm is 97.
func rsrpIndex(dbm int32) int {
	i := int(dbm) + 140
	switch {
	case i < 0:
		return 0
	case i > 97:
		return 97
	}
	return i
}
