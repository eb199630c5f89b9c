package at

// stepFuse bounds every extraction walk. Every URC payload of interest
// fits in a 150 byte line, anything longer is treated as garbage.
const stepFuse = 150

// Field returns the nth comma separated field of a URC payload, counting
// from zero and starting after the "+XXX:" header if one is present.
// Malformed or overlong payloads yield an empty string, never an error;
// the SMS composer forwards degraded fields as-is.
func Field(payload string, n int) string {
	i := 0

	// Skip the URC header up to and including the colon
	for ; i < len(payload) && i < stepFuse; i++ {
		if payload[i] == ':' {
			i++
			break
		}
	}
	if i >= len(payload) || i >= stepFuse {
		i = 0
	}

	// Skip n commas
	commas := 0
	for ; i < len(payload) && i < stepFuse && commas < n; i++ {
		if payload[i] == ',' {
			commas++
		}
	}
	if commas < n {
		return ""
	}

	// Skip the space the modem likes to put after the colon
	for i < len(payload) && payload[i] == ' ' {
		i++
	}

	start := i
	for ; i < len(payload) && i < stepFuse; i++ {
		c := payload[i]
		if c == ',' || c == '\r' || c == '\n' {
			break
		}
	}
	return payload[start:i]
}

// QuotedSender extracts the MSISDN from a +CMT: header line. The number is
// the first quoted token after the colon:
//
//	+CMT: "+48111222333","","24/01/01,00:00:00+04"
//
// Returns an empty string if the header does not look like that.
func QuotedSender(header string) string {
	i := 0

	for ; i < len(header) && i < stepFuse; i++ {
		if header[i] == ':' {
			i++
			break
		}
	}

	for ; i < len(header) && i < stepFuse; i++ {
		if header[i] == '"' {
			i++
			break
		}
	}
	if i >= len(header) || i >= stepFuse {
		return ""
	}

	start := i
	for ; i < len(header) && i < stepFuse; i++ {
		if header[i] == '"' {
			return header[start:i]
		}
	}
	return ""
}
