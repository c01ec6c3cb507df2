package domain

type Room struct {
	ID          string
	Name        string
	Description *string
	BasePrice   float64 // per night
	MaxGuests   int
	Amenities   []string
	ImageURL    *string
	IsActive    bool
}
