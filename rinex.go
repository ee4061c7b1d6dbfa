// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.17
//

package rawpvt

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// RINEX 2.11 and 3.04 format
// https://files.igs.org/pub/data/format/rinex211.txt
// https://files.igs.org/pub/data/format/rinex304.pdf
//

// Extract HEADER LABEL string from header line
func getHeaderLabel(l string) string {
	if len(l) < 60 {
		return ""
	}
	return strings.TrimSpace(l[60:])
}

// Column layout of one RINEX version
type navLayout struct {
	major   int
	epochV0 int // Start of the first value in the epoch line
	orbitV0 int // Start of the first value in the broadcast orbit lines
}

var (
	navLayout2 = navLayout{major: 2, epochV0: 22, orbitV0: 3}
	navLayout3 = navLayout{major: 3, epochV0: 23, orbitV0: 4}
)

// Read four D19.12 values starting at column c
func navValues(l string, c int) [4]float64 {
	if len(l) < c+76 {
		l = l + strings.Repeat(" ", c+76-len(l))
	}
	var v [4]float64
	for i := 0; i < 4; i++ {
		v[i] = parseFloat(l[c+19*i : c+19*(i+1)])
	}
	return v
}

// Read PRN and Toc from navigation data epoch line
func getNavTime(l string, lay navLayout) (prn int, toc GTime, err error) {
	var fs []string
	if lay.major == 2 {
		if len(l) < 22 {
			return 0, toc, fmt.Errorf("epoch line too short: %q", l)
		}
		fs = strings.Fields(l[:22])
	} else {
		if len(l) < 23 {
			return 0, toc, fmt.Errorf("epoch line too short: %q", l)
		}
		fs = strings.Fields(l[1:23])
	}
	if len(fs) != 7 {
		return 0, toc, fmt.Errorf("invalid epoch line: %q", l)
	}
	iv := make([]int, 6)
	for i := 0; i < 6; i++ {
		iv[i], err = strconv.Atoi(fs[i])
		if err != nil {
			return 0, toc, fmt.Errorf("invalid epoch line: %q: %w", l, err)
		}
	}
	sec, err := strconv.ParseFloat(fs[6], 64)
	if err != nil {
		return 0, toc, fmt.Errorf("invalid epoch line: %q: %w", l, err)
	}
	year := iv[1]
	if lay.major == 2 {
		if year < 80 {
			year += 2000
		} else {
			year += 1900
		}
	}
	is := int(sec)
	ns := int((sec - float64(is)) * 1e9)
	toc = *NewGTime(time.Date(year, time.Month(iv[2]), iv[3], iv[4], iv[5], is, ns, time.UTC))
	return iv[0], toc, nil
}

// Read GPS navigation data from a RINEX 2.x or 3.x file.
// Records of other satellite systems are skipped.
func ReadNav(r io.Reader) (*Nav, error) {

	// Flag indicating header reading is complete
	headerDone := false

	// Column layout of the file version
	var lay navLayout

	// Records read so far
	ephs := []*Ephe{}

	// Ephemeris being read. nil while skipping a record of another system.
	var eph *Ephe

	// Calendar time of clock of the record being read
	var toc GTime

	// Current line number being read, counted from the epoch line
	lineCount := 0

	// Reader to read line by line with newline as delimiter
	s := bufio.NewScanner(r)

	// Read line by line
	for s.Scan() {

		// Read line
		line := s.Text()

		// Process header lines
		if !headerDone {
			// Check version and file type
			if getHeaderLabel(line) == "RINEX VERSION / TYPE" {
				ver := strings.TrimSpace(line[:9])
				switch {
				case strings.HasPrefix(ver, "2"):
					lay = navLayout2
				case strings.HasPrefix(ver, "3"):
					lay = navLayout3
				default:
					return nil, fmt.Errorf("unsupported RINEX version. RINEX version must be 2.x or 3.x (ver=%s)", ver)
				}
				typ := line[20:21]
				if typ != "N" {
					return nil, fmt.Errorf("not a navigation message file (typ=%s)", typ)
				}
				if lay.major == 3 && len(line) > 40 && line[40] != 'G' && line[40] != 'M' {
					return nil, fmt.Errorf("no GPS navigation data in file (sys=%c)", line[40])
				}
			}

			// Check end of header lines
			if getHeaderLabel(line) == "END OF HEADER" {
				if lay.major == 0 {
					return nil, fmt.Errorf("RINEX VERSION / TYPE not found")
				}
				headerDone = true
			}
			continue
		}

		if strings.TrimSpace(line) == "" {
			continue
		}

		// Epoch line starts a record
		if !strings.HasPrefix(line, strings.Repeat(" ", lay.orbitV0)) {
			lineCount = 0
			eph = nil
			if lay.major == 3 && line[0] != 'G' {
				continue
			}
			prn, t, err := getNavTime(line, lay)
			if err != nil {
				return nil, fmt.Errorf("failed to read time of clock in navigation message. err=%w", err)
			}
			toc = t
			eph = &Ephe{Sat: prn}
			v := navValues(line, lay.epochV0)
			eph.Af0 = v[0]
			eph.Af1 = v[1]
			eph.Af2 = v[2]
			continue
		}

		// Broadcast orbit lines
		if eph == nil {
			continue
		}
		v := navValues(line, lay.orbitV0)
		lineCount += 1
		switch lineCount {
		case 1:
			eph.Iode = int(v[0])
			eph.Crs = v[1]
			eph.DeltaN = v[2]
			eph.M0 = v[3]
		case 2:
			eph.Cuc = v[0]
			eph.Ecc = v[1]
			eph.Cus = v[2]
			eph.SqrtA = v[3]
		case 3:
			eph.Toe = v[0]
			eph.Cic = v[1]
			eph.Omega0 = v[2]
			eph.Cis = v[3]
		case 4:
			eph.I0 = v[0]
			eph.Crc = v[1]
			eph.Omega = v[2]
			eph.OmegaD = v[3]
		case 5:
			eph.Idot = v[0]
			eph.Week = int(v[2]) // Continuous GPS week of Toe
			// Toc in the week of Toe
			eph.Toc = toc.Sec + float64(toc.Week-eph.Week)*WEEKSEC
		case 6:
			eph.Sva = getURAIndex(v[0])
			eph.Svh = int(v[1])
			eph.Tgd = v[2]
			eph.Iodc = int(v[3])
		case 7:
			eph.Tot = v[0]
			eph.Fit = v[1]
			ephs = append(ephs, eph)
			eph = nil
		}
	}

	// Check if reading completed without error
	if err := s.Err(); err != nil {
		return nil, err
	}
	if !headerDone {
		return nil, fmt.Errorf("END OF HEADER not found")
	}

	return NewNav(ephs), nil
}

// Read real values by absorbing variations in exponential notation within RINEX files
func parseFloat(str string) float64 {
	s := strings.TrimSpace(str)
	if strings.ContainsAny(s, "Dd") {
		s = strings.Replace(s, "D", "E", 1)
		s = strings.Replace(s, "d", "e", 1)
	}
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

// Return URA index for specified value
func getURAIndex(x float64) int {
	if x > 0 && x <= 2.4 {
		return 0
	} else if x > 2.4 && x <= 3.4 {
		return 1
	} else if x > 3.4 && x <= 4.85 {
		return 2
	} else if x > 4.85 && x <= 6.85 {
		return 3
	} else if x > 6.85 && x <= 9.65 {
		return 4
	} else if x > 9.65 && x <= 13.65 {
		return 5
	} else if x > 13.65 && x <= 24.0 {
		return 6
	} else if x > 24.0 && x <= 48.0 {
		return 7
	} else if x > 48.0 && x <= 96.0 {
		return 8
	} else if x > 96.0 && x <= 192.0 {
		return 9
	} else if x > 192.0 && x <= 384.0 {
		return 10
	} else if x > 384.0 && x <= 768.0 {
		return 11
	} else if x > 768.0 && x <= 1536.0 {
		return 12
	} else if x > 1536.0 && x <= 3072.0 {
		return 13
	} else if x > 3072.0 && x <= 6144.0 {
		return 14
	} else {
		return 15
	}
}
