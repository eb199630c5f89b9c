// Package at holds the AT command vocabulary of the SIM7000 family and the
// small parsing helpers the session layer is built on: response line
// framing, response classification and field extraction from URC payloads.
package at

const (
	// Terminal control
	CRLF   = "\r\n"
	Prompt = "> "
	CtrlZ  = "\x1a"

	// Final result codes
	OK    = "OK"
	ERROR = "ERROR"

	// Commands used by the tracker
	CmdAt          = "AT"
	CmdEchoOff     = "ATE0"
	CmdFixBaud     = "AT+IPR=9600"
	CmdSaveConfig  = "AT&W"
	CmdSimStatus   = "AT+CPIN?"
	CmdRegStatus   = "AT+CREG?"
	CmdRegUrcOff   = "AT+CREG=0"
	CmdFlightOn    = "AT+CFUN=4"
	CmdFlightOff   = "AT+CFUN=1"
	CmdSleepOn     = "AT+CSCLK=1"
	CmdSleepOff    = "AT+CSCLK=0"
	CmdTextMode    = "AT+CMGF=1"
	CmdSmsUrcMode  = "AT+CNMI=1,2,0,0,0"
	CmdDeleteSms   = "AT+CMGD=4"
	CmdBattery     = "AT+CBC"
	CmdLedOff      = "AT+CNETLIGHT=0"
	CmdRiPinUrc    = "AT+CFGRI=1"
	CmdGnssPwrOn   = "AT+CGNSPWR=1"
	CmdGnssPwrOff  = "AT+CGNSPWR=0"
	CmdGnssInfo    = "AT+CGNSINF"
	CmdGnssCold    = "AT+CGNSCOLD"
	CmdGnssHot     = "AT+CGNSHOT"
	CmdSendSmsOpen = `AT+CMGS="` // completed with <msisdn>"

	// Response fragments the session matches on
	SimReady          = "+CPIN: READY"
	SimPinNeeded      = "+CPIN: SIM PIN"
	RegisteredHome    = "+CREG: 0,1"
	RegisteredRoaming = "+CREG: 0,5"
	GnssFixed         = "+CGNSINF: 1,1,"

	// URCs
	UrcSmsDeliver = "+CMT:"
	UrcRegStatus  = "+CREG:"
	UrcRing       = "RING"
)

type ResponseType int

const (
	TypeFinal  ResponseType = iota // OK, ERROR
	TypeURC                        // Asynchronous notifications
	TypeData                       // Intermediate command output (+CGNSINF: ...)
	TypePrompt                     // SMS input prompt
)
