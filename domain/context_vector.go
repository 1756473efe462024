package domain

// ContextVector is the situation an allocation decision is made in.
type ContextVector struct {
	TimeOfDay   string `json:"time_of_day"`
	DeviceClass string `json:"device_class"`
	AgeBucket   string `json:"age_bucket"`
	Recency     string `json:"recency"`
}

// Map returns the vector as pattern metadata / decision log fields.
func (c ContextVector) Map() map[string]any {
	return map[string]any{
		"time_of_day":  c.TimeOfDay,
		"device_class": c.DeviceClass,
		"age_bucket":   c.AgeBucket,
		"recency":      c.Recency,
	}
}
