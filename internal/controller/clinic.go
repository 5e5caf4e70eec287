package controller

import (
	"context"
	"fmt"

	"refinery/internal/database"
	"refinery/internal/model"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ClinicController handles clinic read operations
type ClinicController interface {
	// GetClinic retrieves one clinic
	GetClinic(ctx context.Context, clinicID string) (*model.Clinic, error)

	// ListClinics lists clinics matching the filter
	ListClinics(ctx context.Context, filter model.ClinicFilter, limit, offset int) ([]model.Clinic, error)
}

type clinicController struct {
	db database.Database
}

func NewClinic(db database.Database) ClinicController {
	return &clinicController{db: db}
}

func (c *clinicController) GetClinic(ctx context.Context, clinicID string) (*model.Clinic, error) {
	id, err := primitive.ObjectIDFromHex(clinicID)
	if err != nil {
		return nil, fmt.Errorf("invalid clinic ID format: %w", model.ErrNotFound)
	}
	return c.db.GetClinic(ctx, id)
}

func (c *clinicController) ListClinics(ctx context.Context, filter model.ClinicFilter, limit, offset int) ([]model.Clinic, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return c.db.ListClinics(ctx, filter, limit, offset)
}
