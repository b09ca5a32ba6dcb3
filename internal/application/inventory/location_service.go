package inventory

import (
	"context"

	"github.com/google/uuid"
	"github.com/vetstock/backend/internal/domain/inventory"
	"github.com/vetstock/backend/internal/domain/shared"
)

// LocationService manages the location registry
type LocationService struct {
	locationRepo   inventory.LocationRepository
	eventPublisher shared.EventPublisher
}

// NewLocationService creates a new LocationService
func NewLocationService(locationRepo inventory.LocationRepository) *LocationService {
	return &LocationService{locationRepo: locationRepo}
}

// SetEventPublisher sets the event publisher for publishing domain events
func (s *LocationService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// Create registers a new storage location. Names are unique; controlled and
// refrigerated types force the matching storage requirement flags.
func (s *LocationService) Create(ctx context.Context, req CreateLocationRequest) (*LocationResponse, error) {
	if existing, err := s.locationRepo.FindByName(ctx, req.Name); err == nil && existing != nil {
		return nil, shared.NewDomainError("ALREADY_EXISTS", "A location with this name already exists")
	}

	location, err := inventory.NewLocation(req.Name, inventory.LocationType(req.Type))
	if err != nil {
		return nil, err
	}
	if req.Description != "" {
		location.Description = req.Description
	}

	if err := s.locationRepo.Save(ctx, location); err != nil {
		return nil, err
	}

	s.publishEvents(ctx, location)

	response := ToLocationResponse(location)
	return &response, nil
}

// Get returns a location by ID
func (s *LocationService) Get(ctx context.Context, id uuid.UUID) (*LocationResponse, error) {
	location, err := s.locationRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	response := ToLocationResponse(location)
	return &response, nil
}

// ListActive returns all active locations
func (s *LocationService) ListActive(ctx context.Context) ([]LocationResponse, error) {
	locations, err := s.locationRepo.FindActive(ctx)
	if err != nil {
		return nil, err
	}
	responses := make([]LocationResponse, 0, len(locations))
	for i := range locations {
		responses = append(responses, ToLocationResponse(&locations[i]))
	}
	return responses, nil
}

// Rename changes a location's name
func (s *LocationService) Rename(ctx context.Context, id uuid.UUID, name string) (*LocationResponse, error) {
	return s.update(ctx, id, func(location *inventory.Location) error {
		return location.Rename(name)
	})
}

// Deactivate takes a location out of service without deleting it
func (s *LocationService) Deactivate(ctx context.Context, id uuid.UUID) (*LocationResponse, error) {
	return s.update(ctx, id, func(location *inventory.Location) error {
		location.Deactivate()
		return nil
	})
}

// Activate brings a deactivated location back into service
func (s *LocationService) Activate(ctx context.Context, id uuid.UUID) (*LocationResponse, error) {
	return s.update(ctx, id, func(location *inventory.Location) error {
		location.Activate()
		return nil
	})
}

func (s *LocationService) update(ctx context.Context, id uuid.UUID, fn func(location *inventory.Location) error) (*LocationResponse, error) {
	location, err := s.locationRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(location); err != nil {
		return nil, err
	}
	if err := s.locationRepo.Save(ctx, location); err != nil {
		return nil, err
	}

	s.publishEvents(ctx, location)

	response := ToLocationResponse(location)
	return &response, nil
}

func (s *LocationService) publishEvents(ctx context.Context, location *inventory.Location) {
	if s.eventPublisher == nil {
		return
	}
	events := location.GetDomainEvents()
	if len(events) == 0 {
		return
	}
	_ = s.eventPublisher.Publish(ctx, events...)
	location.ClearDomainEvents()
}
