package calendar

// Latitude is a validated latitude coordinate in degrees.
type Latitude float64

// Longitude is a validated longitude coordinate in degrees.
type Longitude float64

// NewLatitude validates that the value is within [-90, 90] degrees.
func NewLatitude(value float64) (Latitude, error) {
	if value < -90 || value > 90 {
		return 0, ErrInvalidLatitude
	}
	return Latitude(value), nil
}

// NewLongitude validates that the value is within [-180, 180] degrees.
func NewLongitude(value float64) (Longitude, error) {
	if value < -180 || value > 180 {
		return 0, ErrInvalidLongitude
	}
	return Longitude(value), nil
}

func (l Latitude) Float64() float64 { return float64(l) }

func (l Longitude) Float64() float64 { return float64(l) }
