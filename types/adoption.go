package types

import "time"

// AdoptionStatus is the lifecycle state of an adoption case.
// Callers may set values beyond the predefined ones.
type AdoptionStatus string

const (
	AdoptionPending   AdoptionStatus = "pending"
	AdoptionCompleted AdoptionStatus = "completed"
)

// AdoptionDateLayout is the wire format of Adoption.AdoptionDate.
const AdoptionDateLayout = "2006-01-02"

// Adoption represents a pet-adoption case.
type Adoption struct {
	// ID is the unique identifier of the adoption (UUID).
	ID string `json:"id" db:"id"`

	// PetName is the name of the adopted pet.
	PetName string `json:"petName" db:"pet_name"`

	// PetType is the kind of pet, e.g. "Dog" or "Cat".
	PetType string `json:"petType" db:"pet_type"`

	// Adopter is the name of the person adopting the pet.
	Adopter string `json:"adopter" db:"adopter"`

	// AdoptionDate is the UTC calendar date the case was opened,
	// formatted as AdoptionDateLayout.
	AdoptionDate string `json:"adoptionDate" db:"adoption_date"`

	// Status is the current state of the case.
	Status AdoptionStatus `json:"status" db:"status"`

	// Notes holds free-form remarks. Empty when none were given.
	Notes string `json:"notes" db:"notes"`

	// UserID identifies the account that registered the adoption.
	UserID string `json:"userId" db:"user_id"`

	// PhotoKey is the object storage key of the pet photo, if uploaded.
	PhotoKey string `json:"photoKey,omitempty" db:"photo_key"`

	// CreatedAt is the timestamp when the adoption was created.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the adoption.
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// AdoptionPatch carries the fields of a partial update. Nil fields are
// left unchanged.
type AdoptionPatch struct {
	Status *AdoptionStatus
	Notes  *string
}
