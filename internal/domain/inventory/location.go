package inventory

import (
	"strings"
	"time"

	"github.com/vetstock/backend/internal/domain/shared"
)

// LocationStatus represents the status of a storage location
type LocationStatus string

const (
	LocationStatusActive   LocationStatus = "active"
	LocationStatusInactive LocationStatus = "inactive"
)

// LocationType represents the type of storage location
type LocationType string

const (
	LocationTypeStore        LocationType = "store"        // Retail floor shelving
	LocationTypePharmacy     LocationType = "pharmacy"     // Pharmacy shelf
	LocationTypeClinic       LocationType = "clinic"       // Clinic treatment area
	LocationTypeRefrigerated LocationType = "refrigerated" // Cold storage
	LocationTypeControlled   LocationType = "controlled"   // Controlled substances cabinet
	LocationTypeWarehouse    LocationType = "warehouse"    // Back-of-house storage
)

// IsValid checks if the location type is valid
func (t LocationType) IsValid() bool {
	switch t {
	case LocationTypeStore, LocationTypePharmacy, LocationTypeClinic,
		LocationTypeRefrigerated, LocationTypeControlled, LocationTypeWarehouse:
		return true
	}
	return false
}

// String returns the string representation
func (t LocationType) String() string {
	return string(t)
}

// Location represents a physical storage location stock is held at.
// It is the aggregate root for location-related operations.
type Location struct {
	shared.BaseAggregateRoot
	Name        string         `gorm:"type:varchar(100);not null;uniqueIndex:idx_location_name"`
	Description string         `gorm:"type:text"`
	Type        LocationType   `gorm:"type:varchar(20);not null;default:'store'"`
	Status      LocationStatus `gorm:"type:varchar(20);not null;default:'active'"`
	// Storage requirements derived from the location type at creation,
	// overridable afterwards for mixed-use locations.
	RequiresTemperatureControl bool `gorm:"not null;default:false"`
	RequiresRestrictedAccess   bool `gorm:"not null;default:false"`
}

// TableName returns the table name for GORM
func (Location) TableName() string {
	return "locations"
}

// NewLocation creates a new storage location
func NewLocation(name string, locationType LocationType) (*Location, error) {
	if err := validateLocationName(name); err != nil {
		return nil, err
	}
	if !locationType.IsValid() {
		return nil, shared.NewDomainError("INVALID_LOCATION_TYPE", "Unknown location type: "+string(locationType))
	}

	location := &Location{
		BaseAggregateRoot:          shared.NewBaseAggregateRoot(),
		Name:                       strings.TrimSpace(name),
		Type:                       locationType,
		Status:                     LocationStatusActive,
		RequiresTemperatureControl: locationType == LocationTypeRefrigerated,
		RequiresRestrictedAccess:   locationType == LocationTypeControlled,
	}

	location.AddDomainEvent(NewLocationCreatedEvent(location))

	return location, nil
}

// Rename updates the location name
func (l *Location) Rename(name string) error {
	if err := validateLocationName(name); err != nil {
		return err
	}

	l.Name = strings.TrimSpace(name)
	l.UpdatedAt = time.Now()
	l.IncrementVersion()

	return nil
}

// SetDescription updates the free-form description
func (l *Location) SetDescription(description string) {
	l.Description = description
	l.UpdatedAt = time.Now()
	l.IncrementVersion()
}

// Activate makes the location available for stock operations
func (l *Location) Activate() {
	if l.Status == LocationStatusActive {
		return
	}
	l.Status = LocationStatusActive
	l.UpdatedAt = time.Now()
	l.IncrementVersion()
}

// Deactivate takes the location out of service. Existing stock records at the
// location are preserved; locations are never hard-deleted because movement
// history references them.
func (l *Location) Deactivate() {
	if l.Status == LocationStatusInactive {
		return
	}
	l.Status = LocationStatusInactive
	l.UpdatedAt = time.Now()
	l.IncrementVersion()

	l.AddDomainEvent(NewLocationDeactivatedEvent(l))
}

// IsActive returns true if the location can accept stock operations
func (l *Location) IsActive() bool {
	return l.Status == LocationStatusActive
}

func validateLocationName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return shared.NewDomainError("INVALID_LOCATION_NAME", "Location name cannot be empty")
	}
	if len(name) > 100 {
		return shared.NewDomainError("INVALID_LOCATION_NAME", "Location name cannot exceed 100 characters")
	}
	return nil
}
