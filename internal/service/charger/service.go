package charger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chargenet/csms/internal/domain"
	"github.com/chargenet/csms/internal/ports"
)

const listCacheKey = "chargers:list"
const listCacheTTL = 10 * time.Second

// Service owns the charger registry: boot/heartbeat upserts from the OCPP
// gateway and the operator read model with derived online status.
type Service struct {
	chargers ports.ChargerRepository
	users    ports.UserRepository
	cache    ports.Cache
	events   ports.EventPublisher
	clock    ports.Clock
	log      *zap.Logger
}

func NewService(
	chargers ports.ChargerRepository,
	users ports.UserRepository,
	cache ports.Cache,
	events ports.EventPublisher,
	clock ports.Clock,
	log *zap.Logger,
) *Service {
	return &Service{
		chargers: chargers,
		users:    users,
		cache:    cache,
		events:   events,
		clock:    clock,
		log:      log,
	}
}

// OnBootNotification upserts the charger from its self-description and
// returns the heartbeat interval to advertise.
func (s *Service) OnBootNotification(ctx context.Context, chargePointID string, info ports.BootInfo) (int, error) {
	now := s.clock.Now()

	charger, err := s.chargers.GetByChargePointID(ctx, chargePointID)
	if err != nil {
		return 0, fmt.Errorf("load charger: %w", err)
	}

	if charger == nil {
		charger = &domain.Charger{
			ChargePointID:       chargePointID,
			Name:                chargePointID,
			Vendor:              info.Vendor,
			Model:               info.Model,
			SerialNumber:        info.SerialNumber,
			FirmwareVersion:     info.FirmwareVersion,
			Status:              domain.ChargerStatusOnline,
			Availability:        domain.AvailabilityAvailable,
			LastHeartbeat:       &now,
			HeartbeatIntervalS:  domain.DefaultHeartbeatIntervalS,
			NumberOfConnectors:  domain.DefaultNumberOfConnectors,
			MeterValueIntervalS: domain.DefaultMeterValueIntervalS,
		}
		if err := s.chargers.Create(ctx, charger); err != nil {
			return 0, fmt.Errorf("register charger: %w", err)
		}
		s.log.Info("New charge point registered",
			zap.String("charge_point_id", chargePointID),
			zap.String("vendor", info.Vendor),
			zap.String("model", info.Model))
	} else {
		charger.Vendor = info.Vendor
		charger.Model = info.Model
		if info.SerialNumber != "" {
			charger.SerialNumber = info.SerialNumber
		}
		if info.FirmwareVersion != "" {
			charger.FirmwareVersion = info.FirmwareVersion
		}
		charger.Status = domain.ChargerStatusOnline
		charger.LastHeartbeat = &now
		if err := s.chargers.Update(ctx, charger); err != nil {
			return 0, fmt.Errorf("update charger: %w", err)
		}
	}

	s.invalidateListCache(ctx)
	s.publish(ctx, "charger.boot", charger)
	return charger.HeartbeatIntervalS, nil
}

func (s *Service) OnHeartbeat(ctx context.Context, chargePointID string) error {
	if err := s.chargers.UpdateHeartbeat(ctx, chargePointID, s.clock.Now()); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// Authorize accepts an id tag when it maps to an active account, and accepts
// unknown tags so card-present charging keeps working without an account.
func (s *Service) Authorize(ctx context.Context, chargePointID, idTag string) (bool, error) {
	if idTag == "" {
		return false, nil
	}
	user, err := s.users.GetByEmail(ctx, idTag)
	if err != nil {
		return false, fmt.Errorf("look up id tag: %w", err)
	}
	if user != nil && !user.IsActive {
		return false, nil
	}
	return true, nil
}

func (s *Service) Register(ctx context.Context, charger *domain.Charger) error {
	if charger.ChargePointID == "" {
		return domain.ValidationError("charge_point_id required")
	}
	existing, err := s.chargers.GetByChargePointID(ctx, charger.ChargePointID)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: charger %s", domain.ErrConflict, charger.ChargePointID)
	}
	if charger.HeartbeatIntervalS <= 0 {
		charger.HeartbeatIntervalS = domain.DefaultHeartbeatIntervalS
	}
	if charger.NumberOfConnectors <= 0 {
		charger.NumberOfConnectors = domain.DefaultNumberOfConnectors
	}
	if charger.MeterValueIntervalS <= 0 {
		charger.MeterValueIntervalS = domain.DefaultMeterValueIntervalS
	}
	charger.Status = domain.ChargerStatusOffline
	charger.Availability = domain.AvailabilityUnknown
	if err := s.chargers.Create(ctx, charger); err != nil {
		return err
	}
	s.invalidateListCache(ctx)
	return nil
}

func (s *Service) Get(ctx context.Context, chargePointID string) (*domain.Charger, error) {
	charger, err := s.chargers.GetByChargePointID(ctx, chargePointID)
	if err != nil {
		return nil, err
	}
	if charger == nil {
		return nil, fmt.Errorf("%w: charger %s", domain.ErrNotFound, chargePointID)
	}
	charger.Status = charger.EffectiveStatus(s.clock.Now())
	return charger, nil
}

// List returns all chargers with the derived online status. The serialized
// list is cached briefly to absorb dashboard polling.
func (s *Service) List(ctx context.Context) ([]*domain.Charger, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, listCacheKey); err == nil && cached != "" {
			var chargers []*domain.Charger
			if err := json.Unmarshal([]byte(cached), &chargers); err == nil {
				return chargers, nil
			}
		}
	}

	chargers, err := s.chargers.List(ctx)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	for _, c := range chargers {
		c.Status = c.EffectiveStatus(now)
	}

	if s.cache != nil {
		if data, err := json.Marshal(chargers); err == nil {
			if err := s.cache.Set(ctx, listCacheKey, string(data), listCacheTTL); err != nil {
				s.log.Debug("Failed to cache charger list", zap.Error(err))
			}
		}
	}
	return chargers, nil
}

func (s *Service) UpdateConfig(ctx context.Context, chargePointID string, heartbeatIntervalS, numberOfConnectors, meterValueIntervalS *int) (*domain.Charger, error) {
	charger, err := s.chargers.GetByChargePointID(ctx, chargePointID)
	if err != nil {
		return nil, err
	}
	if charger == nil {
		return nil, fmt.Errorf("%w: charger %s", domain.ErrNotFound, chargePointID)
	}

	if heartbeatIntervalS != nil {
		if *heartbeatIntervalS < 10 {
			return nil, domain.ValidationError("heartbeat_interval must be at least 10s")
		}
		charger.HeartbeatIntervalS = *heartbeatIntervalS
	}
	if numberOfConnectors != nil {
		if *numberOfConnectors < 1 {
			return nil, domain.ValidationError("number_of_connectors must be at least 1")
		}
		charger.NumberOfConnectors = *numberOfConnectors
	}
	if meterValueIntervalS != nil {
		if *meterValueIntervalS < 1 {
			return nil, domain.ValidationError("meter_value_interval must be at least 1s")
		}
		charger.MeterValueIntervalS = *meterValueIntervalS
	}

	if err := s.chargers.Update(ctx, charger); err != nil {
		return nil, err
	}
	s.invalidateListCache(ctx)
	return charger, nil
}

func (s *Service) Delete(ctx context.Context, id uint) error {
	charger, err := s.chargers.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if charger == nil {
		return fmt.Errorf("%w: charger %d", domain.ErrNotFound, id)
	}
	if err := s.chargers.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidateListCache(ctx)
	return nil
}

func (s *Service) invalidateListCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, listCacheKey); err != nil {
		s.log.Debug("Failed to invalidate charger list cache", zap.Error(err))
	}
}

func (s *Service) publish(ctx context.Context, event string, payload interface{}) {
	if s.events == nil {
		return
	}
	body := map[string]interface{}{
		"event":     event,
		"timestamp": s.clock.Now().UTC(),
		"data":      payload,
	}
	if err := s.events.Publish(ctx, ports.SubjectChargerEvents, body); err != nil {
		s.log.Warn("Failed to publish charger event", zap.String("event", event), zap.Error(err))
	}
}
