// Package registry reads and writes dapp and profile records embedded in
// ledger transaction state. It is the durable, cost-bearing channel and the
// bootstrap source for clients with no cached state.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/minibay/storefront/internal/app/domain/listing"
	"github.com/minibay/storefront/internal/app/domain/peer"
	"github.com/minibay/storefront/internal/app/metrics"
	"github.com/minibay/storefront/internal/ledger"
	"github.com/minibay/storefront/pkg/logger"
)

// MetadataSlot is the reserved state slot carrying the record's metadata.
const MetadataSlot = 0

// Record tags stored in the metadata's type field.
const (
	recordTypeDapp    = "dapp"
	recordTypeProfile = "profile"
)

// LedgerClient is the slice of the node client the registry needs.
type LedgerClient interface {
	Coins(ctx context.Context) ([]ledger.Coin, error)
	Balance(ctx context.Context) (ledger.Balance, error)
	Send(ctx context.Context, amount, address string, state map[string]string) (string, error)
}

// Service scans and writes the permanent registry.
type Service struct {
	client    LedgerClient
	treasury  string
	fee       string
	feeAmount float64
	log       *logger.Logger
	now       func() time.Time
}

// Config holds registry parameters.
type Config struct {
	// TreasuryAddress receives the registration fee; registration records
	// live in the transaction's embedded state.
	TreasuryAddress string
	// Fee is the fixed registration cost in base tokens.
	Fee string
}

// New constructs a registry service.
func New(client LedgerClient, cfg Config, log *logger.Logger) (*Service, error) {
	if client == nil {
		return nil, fmt.Errorf("ledger client required")
	}
	if cfg.TreasuryAddress == "" {
		return nil, fmt.Errorf("treasury address required")
	}
	fee := cfg.Fee
	if fee == "" {
		fee = "0.01"
	}
	feeAmount, err := strconv.ParseFloat(fee, 64)
	if err != nil || feeAmount <= 0 {
		return nil, fmt.Errorf("invalid registration fee %q", fee)
	}
	if log == nil {
		log = logger.NewDefault("registry")
	}
	return &Service{
		client:    client,
		treasury:  cfg.TreasuryAddress,
		fee:       fee,
		feeAmount: feeAmount,
		log:       log,
		now:       time.Now,
	}, nil
}

// QueryRegisteredDapps scans all ledger value records, decodes the reserved
// metadata slot of each, and returns the records tagged as dapp
// registrations. Malformed per-record metadata is skipped, never fatal.
// A limit above zero truncates the result after decode.
func (s *Service) QueryRegisteredDapps(ctx context.Context, limit int) ([]listing.Entry, error) {
	coins, err := s.client.Coins(ctx)
	if err != nil {
		metrics.ObserveRegistryScan("error")
		return nil, fmt.Errorf("registry scan: %w", err)
	}
	metrics.ObserveRegistryScan("success")

	scannedAt := s.now().UTC()
	var entries []listing.Entry
	for _, coin := range coins {
		meta, ok := s.decodeTagged(coin, recordTypeDapp)
		if !ok {
			continue
		}

		entry := listing.Entry{
			ID:               "reg-" + strings.TrimPrefix(coin.CoinID, "0x"),
			Name:             meta.Get("name").String(),
			Description:      meta.Get("description").String(),
			Version:          defaulted(meta.Get("version").String(), listing.DefaultVersion),
			Category:         defaulted(meta.Get("category").String(), listing.DefaultCategory),
			PackageURL:       meta.Get("package").String(),
			IconURL:          meta.Get("icon").String(),
			PublisherAddress: meta.Get("publisher").String(),
			Origin:           listing.OriginPermanentRegistry,
			Downloads:        meta.Get("downloads").Int(),
			FetchedAt:        scannedAt,
		}
		if entry.Name == "" || entry.PackageURL == "" {
			s.log.Warnf("registry record %s missing name or package, skipping", coin.CoinID)
			continue
		}

		entries = append(entries, entry)
		if limit > 0 && len(entries) >= limit {
			break
		}
	}
	return entries, nil
}

// QueryProfiles scans for identity records. A non-empty address narrows the
// result client-side after decode.
func (s *Service) QueryProfiles(ctx context.Context, address string) ([]peer.Profile, error) {
	coins, err := s.client.Coins(ctx)
	if err != nil {
		metrics.ObserveRegistryScan("error")
		return nil, fmt.Errorf("registry scan: %w", err)
	}
	metrics.ObserveRegistryScan("success")

	var profiles []peer.Profile
	for _, coin := range coins {
		meta, ok := s.decodeTagged(coin, recordTypeProfile)
		if !ok {
			continue
		}

		profile := peer.Profile{
			Address:            meta.Get("address").String(),
			DisplayName:        meta.Get("name").String(),
			CatalogURL:         meta.Get("catalog").String(),
			LiveChannelAddress: meta.Get("channel").String(),
			TransactionID:      coin.CoinID,
			RegisteredAt:       coinCreated(coin),
		}
		if profile.Address == "" {
			s.log.Warnf("profile record %s missing address, skipping", coin.CoinID)
			continue
		}
		if address != "" && profile.Address != address {
			continue
		}
		profiles = append(profiles, profile)
	}
	return profiles, nil
}

// RegisterDapp submits a fee-bearing transfer to the treasury carrying the
// entry's metadata. This is a durable, irreversible side effect; a returned
// *WriteError is terminal for this attempt.
func (s *Service) RegisterDapp(ctx context.Context, entry listing.Entry, publisherAddress string) (string, error) {
	meta := map[string]string{
		"type":        recordTypeDapp,
		"name":        entry.Name,
		"description": entry.Description,
		"version":     defaulted(entry.Version, listing.DefaultVersion),
		"category":    defaulted(entry.Category, listing.DefaultCategory),
		"package":     entry.PackageURL,
		"icon":        entry.IconURL,
		"publisher":   publisherAddress,
	}
	return s.write(ctx, meta)
}

// RegisterProfile publishes an identity record the same way.
func (s *Service) RegisterProfile(ctx context.Context, profile peer.Profile) (string, error) {
	meta := map[string]string{
		"type":    recordTypeProfile,
		"address": profile.Address,
		"name":    profile.DisplayName,
		"catalog": profile.CatalogURL,
		"channel": profile.LiveChannelAddress,
	}
	return s.write(ctx, meta)
}

func (s *Service) write(ctx context.Context, meta map[string]string) (string, error) {
	balance, err := s.client.Balance(ctx)
	if err != nil {
		return "", &WriteError{Kind: WriteRPCFailure, Err: err}
	}
	available, err := strconv.ParseFloat(balance.Sendable, 64)
	if err != nil {
		return "", &WriteError{Kind: WriteRPCFailure, Err: fmt.Errorf("parse balance %q: %w", balance.Sendable, err)}
	}
	if available < s.feeAmount {
		return "", &WriteError{Kind: WriteInsufficientBalance}
	}

	encoded, err := json.Marshal(meta)
	if err != nil {
		return "", &WriteError{Kind: WriteRPCFailure, Err: err}
	}

	txID, err := s.client.Send(ctx, s.fee, s.treasury,
		map[string]string{strconv.Itoa(MetadataSlot): string(encoded)})
	if err != nil {
		return "", &WriteError{Kind: WriteRPCFailure, Err: err}
	}

	s.log.WithField("txid", txID).Info("registry record written")
	return txID, nil
}

// decodeTagged decodes the reserved metadata slot and checks the type tag.
// Records without parseable, correctly-tagged metadata are skipped.
func (s *Service) decodeTagged(coin ledger.Coin, wantType string) (gjson.Result, bool) {
	raw := coin.StateAt(MetadataSlot)
	if raw == "" {
		return gjson.Result{}, false
	}
	if !gjson.Valid(raw) {
		s.log.Debugf("record %s carries non-JSON metadata, skipping", coin.CoinID)
		return gjson.Result{}, false
	}
	meta := gjson.Parse(raw)
	if !meta.IsObject() || meta.Get("type").String() != wantType {
		return gjson.Result{}, false
	}
	return meta, true
}

func defaulted(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func coinCreated(coin ledger.Coin) time.Time {
	if millis, err := strconv.ParseInt(coin.Created, 10, 64); err == nil && millis > 0 {
		return time.UnixMilli(millis).UTC()
	}
	return time.Time{}
}
