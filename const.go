// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.12
//

package rawpvt

const (
	PI         = 3.1415926535897932  // Pi
	C          = 2.99792458e8        // Speed of light [m/s]
	Re         = 6378137.0           // Earth's radius [m]
	Fe         = 1.0 / 298.257223563 // Earth's flattening
	MU         = 3.986005e14         // WGS-84 earth gravitational constant for GPS [m^3/s^2]
	WE         = 7.2921151467e-5     // WGS-84 earth rotation rate [rad/s]
	FREL       = -4.442807633e-10    // Relativistic correction constant -2*sqrt(MU)/C^2 [s/m^0.5]
	WEEKSEC    = 604800              // Seconds in a GPS week
	DAYSEC     = 86400               // Seconds in a day
	GPSEPOCHJD = 2444244.5           // Julian day of the GPS epoch 1980/1/6 00:00:00

	// Nanoseconds in a GPS week
	WEEKNANOS = int64(WEEKSEC) * 1000000000
)

// Processing thresholds
const (
	TOW_UNC_NANOS_MAX    = 500.0 // Maximum ReceivedSvTimeUncertaintyNanos [ns]
	PRR_UNC_MPS_MAX      = 10.0  // Maximum PseudorangeRateUncertaintyMetersPerSecond [m/s]
	MAX_PR_BIAS_SEC      = 10.0  // Largest pseudorange left after a week rollover fix [s]
	EPOCH_GROUP_NANOS    = 1000000
	MAX_DEL_POS_FOR_NAVM = 20.0 // WLS stop threshold. 20 m at GPS range is a 1 microradian line of sight error
	MAX_WLS_LOOP_COUNT   = 100
	MAX_KEPLER_LOOP      = 20
	KEPLER_TOL           = 1e-8
	MIN_SATS_FOR_PVT     = 4
)
