package telemetry

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// quatFromXYZW builds a quaternion from source column order (x, y, z, w)
// and normalises it. A zero quaternion (all-blank row cells) degrades to
// identity rather than poisoning downstream composition.
func quatFromXYZW(x, y, z, w float64) quat.Number {
	q := quat.Number{Real: w, Imag: x, Jmag: y, Kmag: z}
	n := quat.Abs(q)
	if n == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, q)
}

// eulerXYZ extracts roll/pitch/yaw in degrees from a unit quaternion:
// roll about x, pitch about y, yaw about z. Pitch is clamped at the
// gimbal singularity.
func eulerXYZ(q quat.Number) (roll, pitch, yaw float64) {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag

	roll = math.Atan2(2*(w*x+y*z), 1-2*(x*x+y*y))

	sinp := 2 * (w*y - z*x)
	if sinp > 1 {
		sinp = 1
	} else if sinp < -1 {
		sinp = -1
	}
	pitch = math.Asin(sinp)

	yaw = math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z))

	const degPerRad = 180 / math.Pi
	return roll * degPerRad, pitch * degPerRad, yaw * degPerRad
}
