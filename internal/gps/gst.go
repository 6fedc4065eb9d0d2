// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	nmea "github.com/adrianmo/go-nmea"
)

// typeGST is the pseudorange error statistics sentence. go-nmea has no
// parser for it, so one is registered at init.
const typeGST = "GST"

// gstSentence carries the 1 sigma position errors of a GST sentence.
type gstSentence struct {
	nmea.BaseSentence
	RMS            float64
	LatitudeError  float64 // meters
	LongitudeError float64 // meters
	AltitudeError  float64 // meters
}

func init() {
	nmea.MustRegisterParser(typeGST, parseGST)
}

// parseGST decodes $--GST,time,rms,major,minor,orient,lat_err,lon_err,alt_err.
func parseGST(s nmea.BaseSentence) (nmea.Sentence, error) {
	p := nmea.NewParser(s)
	m := gstSentence{
		BaseSentence:   s,
		RMS:            p.Float64(1, "rms"),
		LatitudeError:  p.Float64(5, "latitude error"),
		LongitudeError: p.Float64(6, "longitude error"),
		AltitudeError:  p.Float64(7, "altitude error"),
	}
	return m, p.Err()
}
