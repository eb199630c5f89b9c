package tracker

// Text fragments of the outgoing SMS. The LONGTITUDE spelling is part of
// the established message format; receivers parse it as-is.
const (
	ackSingle    = "SINGLE MEASUREMENT IN PROGRESS... PLEASE WAIT 7-8 MINUTES BEFORE NEXT COMMAND\n"
	ackMulti     = "MULTIPLE MEASUREMENTS IN PROGRESS.. PLEASE WAIT 25 MINUTES BEFORE NEXT COMMAND\n"
	ackActivated = "ACTIVATED CALLS FROM "
	ackGuard     = "GUARD MODE ACTIVATED.. PLEASE WAIT 5 MINUTES BEFORE NEXT COMMAND\n"
	ackStopped   = "GUARD MODE STOPPED"
	alertPrefix  = "ALERT, POSITION CHANGED TO :  "

	fragLongitude = " LONGTITUDE="
	fragLatitude  = " LATITUDE="
	fragBattery   = "\nBATTERY[mV]="
	fragMapsURL   = "\r\n http://maps.google.com/maps?q="
	fragCRLF      = "\r\n"
)

// reportFragments assembles the position report body:
//
//	 LONGTITUDE=<lon> LATITUDE=<lat>
//	BATTERY[mV]=<mv>
//	 http://maps.google.com/maps?q=<lat>,<lon>
func reportFragments(lat, lon, battery string) []string {
	return []string{
		fragLongitude, lon,
		fragLatitude, lat,
		fragBattery, battery,
		fragMapsURL, lat, ",", lon, fragCRLF,
	}
}

// alertFragments assembles the guard alert body, the short form with
// just the maps link.
func alertFragments(lat, lon string) []string {
	return []string{
		alertPrefix,
		fragMapsURL, lat, ",", lon, fragCRLF,
	}
}
