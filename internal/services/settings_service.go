package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/vikray/backend/internal/middleware"
	"github.com/vikray/backend/internal/models"
)

// DefaultCommissionPercent seeds the settings row when none exists yet.
const DefaultCommissionPercent = 10

// SettingsService owns the platform_settings singleton: the commission
// percentage, the explicit platform settlement account and the accepted
// funding addresses.
type SettingsService struct {
	db        *sql.DB
	validator *ValidationHelper
}

func NewSettingsService(db *sql.DB) *SettingsService {
	return &SettingsService{db: db, validator: NewValidationHelper()}
}

// Get loads the settings row, lazily creating it with defaults if absent.
func (ss *SettingsService) Get() (*models.PlatformSettings, error) {
	settings, err := ss.load()
	if err == nil {
		return settings, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	_, err = ss.db.Exec(`
		INSERT INTO platform_settings (singleton, commission_percent, platform_account_id, accepted_addresses)
		VALUES (TRUE, $1, '', '{}')
		ON CONFLICT (singleton) DO NOTHING`, DefaultCommissionPercent)
	if err != nil {
		return nil, err
	}

	return ss.load()
}

func (ss *SettingsService) load() (*models.PlatformSettings, error) {
	var settings models.PlatformSettings
	var addressesJSON []byte
	err := ss.db.QueryRow(`
		SELECT commission_percent, platform_account_id, accepted_addresses
		FROM platform_settings
		WHERE singleton = TRUE`).Scan(&settings.CommissionPercent, &settings.PlatformAccountID, &addressesJSON)
	if err != nil {
		return nil, err
	}

	settings.AcceptedAddresses = map[string]string{}
	if len(addressesJSON) > 0 {
		if err := json.Unmarshal(addressesJSON, &settings.AcceptedAddresses); err != nil {
			return nil, fmt.Errorf("corrupt accepted_addresses: %w", err)
		}
	}
	return &settings, nil
}

// Update overwrites the singleton. Commission percent must stay within 0-100.
func (ss *SettingsService) Update(settings *models.PlatformSettings) error {
	if settings.CommissionPercent < 0 || settings.CommissionPercent > 100 {
		return fmt.Errorf("commission percent must be between 0 and 100, got %v", settings.CommissionPercent)
	}
	if settings.AcceptedAddresses == nil {
		settings.AcceptedAddresses = map[string]string{}
	}

	addressesJSON, err := json.Marshal(settings.AcceptedAddresses)
	if err != nil {
		return err
	}

	// Upsert so an update works even before the lazy default was created.
	_, err = ss.db.Exec(`
		INSERT INTO platform_settings (singleton, commission_percent, platform_account_id, accepted_addresses)
		VALUES (TRUE, $1, $2, $3)
		ON CONFLICT (singleton) DO UPDATE
		SET commission_percent = EXCLUDED.commission_percent,
		    platform_account_id = EXCLUDED.platform_account_id,
		    accepted_addresses = EXCLUDED.accepted_addresses`,
		settings.CommissionPercent, settings.PlatformAccountID, addressesJSON)
	return err
}

// GetSettings returns the platform settings
// @Summary Get platform settings
// @Description Retrieve the commission percentage, platform account and accepted funding addresses
// @Tags admin
// @Produce json
// @Success 200 {object} models.PlatformSettings
// @Failure 403 {object} ErrorResponse
// @Router /admin/settings [get]
func (ss *SettingsService) GetSettings(w http.ResponseWriter, r *http.Request) {
	if middleware.Role(r.Context()) != middleware.RoleAdmin {
		SendErrorResponse(w, "Admin access required", http.StatusForbidden, nil)
		return
	}

	settings, err := ss.Get()
	if err != nil {
		log.Printf("[SETTINGS] Failed to load settings: %v", err)
		SendErrorResponse(w, "Failed to load settings", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(settings)
}

// UpdateSettings replaces the platform settings
// @Summary Update platform settings
// @Description Replace the commission percentage, platform account and accepted funding addresses
// @Tags admin
// @Accept json
// @Produce json
// @Param settings body models.PlatformSettings true "New settings"
// @Success 200 {object} models.PlatformSettings
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /admin/settings [put]
func (ss *SettingsService) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	if middleware.Role(r.Context()) != middleware.RoleAdmin {
		SendErrorResponse(w, "Admin access required", http.StatusForbidden, nil)
		return
	}

	var req struct {
		CommissionPercent float64           `json:"commission_percent" validate:"min=0,max=100"`
		PlatformAccountID string            `json:"platform_account_id" validate:"max=64"`
		AcceptedAddresses map[string]string `json:"accepted_addresses"`
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := ss.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	settings := &models.PlatformSettings{
		CommissionPercent: req.CommissionPercent,
		PlatformAccountID: req.PlatformAccountID,
		AcceptedAddresses: req.AcceptedAddresses,
	}
	if err := ss.Update(settings); err != nil {
		log.Printf("[SETTINGS] Failed to update settings: %v", err)
		SendErrorResponse(w, "Failed to update settings", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[SETTINGS] Updated by %s: commission=%v%%, platform_account=%s",
		middleware.UserID(r.Context()), req.CommissionPercent, req.PlatformAccountID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(settings)
}
