package install

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-crm-install/core"
	glog "github.com/goliatone/go-logger/glog"
)

// LocationInstaller exchanges a location token under a company credential and
// persists the resulting location row. The upsert is idempotent by location
// id, so redelivered install events converge on the same state.
type LocationInstaller struct {
	tokens    core.LocationTokenExchanger
	locations core.LocationStore
	logger    core.Logger
}

func NewLocationInstaller(
	tokens core.LocationTokenExchanger,
	locations core.LocationStore,
	logger core.Logger,
) (*LocationInstaller, error) {
	if tokens == nil {
		return nil, fmt.Errorf("install: location token exchanger is required")
	}
	if locations == nil {
		return nil, fmt.Errorf("install: location store is required")
	}
	_, logger = glog.Resolve("crm-install.installer", nil, logger)
	return &LocationInstaller{
		tokens:    tokens,
		locations: locations,
		logger:    logger,
	}, nil
}

func (i *LocationInstaller) InstallLocation(
	ctx context.Context,
	companyID string,
	locationID string,
	companyToken string,
) (core.Location, error) {
	if i == nil || i.tokens == nil || i.locations == nil {
		return core.Location{}, fmt.Errorf("install: location installer is not configured")
	}
	companyID = strings.TrimSpace(companyID)
	locationID = strings.TrimSpace(locationID)
	if companyID == "" || locationID == "" {
		return core.Location{}, core.BadGrantError("install: company id and location id are required")
	}

	credential, err := i.tokens.ExchangeLocationToken(ctx, companyID, locationID, companyToken)
	if err != nil {
		return core.Location{}, err
	}

	location, err := i.locations.Upsert(ctx, core.UpsertLocationInput{
		LocationID:   locationID,
		CompanyID:    companyID,
		AccessToken:  credential.AccessToken,
		RefreshToken: credential.RefreshToken,
		ExpiresAt:    credential.ExpiresAt,
	})
	if err != nil {
		return core.Location{}, err
	}

	i.logger.Info("location installed",
		"company_id", companyID,
		"location_id", locationID,
		"expires_at", credential.ExpiresAt,
	)
	return location, nil
}
