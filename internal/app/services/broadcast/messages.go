package broadcast

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/minibay/storefront/internal/app/domain/listing"
	"github.com/minibay/storefront/internal/app/domain/peer"
)

// Message types carried on the live channel.
const (
	TypeNewDapp       = "new_dapp"
	TypeProfileUpdate = "profile_update"
	TypeDownload      = "download"
	TypeTip           = "tip"
)

// ErrUnknownType marks an inbound message whose type is not recognised.
// Listeners ignore these; they are never fatal.
var ErrUnknownType = errors.New("unknown message type")

// NewDappEvent announces a freshly published listing.
type NewDappEvent struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`
	Category    string `json:"category"`
	Package     string `json:"package"`
	Icon        string `json:"icon,omitempty"`
	Publisher   string `json:"publisher"`
}

// Entry converts the event into a canonical listing entry.
func (e NewDappEvent) Entry(receivedAt time.Time) listing.Entry {
	id := e.ID
	if id == "" {
		id = listing.EntryID(e.Name, e.Publisher)
	}
	return listing.Entry{
		ID:               id,
		Name:             e.Name,
		Description:      e.Description,
		Version:          defaulted(e.Version, listing.DefaultVersion),
		Category:         defaulted(e.Category, listing.DefaultCategory),
		PackageURL:       e.Package,
		IconURL:          e.Icon,
		PublisherAddress: e.Publisher,
		Origin:           listing.OriginP2PCatalog,
		FetchedAt:        receivedAt,
	}
}

// ProfileUpdateEvent announces a changed peer identity.
type ProfileUpdateEvent struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
	Catalog string `json:"catalog,omitempty"`
	Channel string `json:"channel,omitempty"`
}

// Identity converts the event into a peer identity.
func (e ProfileUpdateEvent) Identity(receivedAt time.Time) peer.Identity {
	return peer.Identity{
		Address:            e.Address,
		DisplayName:        e.Name,
		CatalogURL:         e.Catalog,
		LiveChannelAddress: e.Channel,
		UpdatedAt:          receivedAt,
	}
}

// DownloadEvent is a download receipt for one listing.
type DownloadEvent struct {
	EntryID string `json:"entry_id"`
	Actor   string `json:"actor,omitempty"`
}

// TipEvent is a tip receipt for one publisher's listing.
type TipEvent struct {
	EntryID string  `json:"entry_id"`
	Amount  float64 `json:"amount"`
	To      string  `json:"to"`
	From    string  `json:"from,omitempty"`
}

// Message is the decoded tagged union of channel payloads. Exactly one
// payload pointer is set for a known type.
type Message struct {
	Type          string
	NewDapp       *NewDappEvent
	ProfileUpdate *ProfileUpdateEvent
	Download      *DownloadEvent
	Tip           *TipEvent
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Decode parses one wire message. Unknown types return ErrUnknownType with
// the type preserved so callers can log and ignore.
func Decode(raw []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Message{}, fmt.Errorf("decode envelope: %w", err)
	}

	msg := Message{Type: env.Type}
	switch env.Type {
	case TypeNewDapp:
		var ev NewDappEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return Message{}, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		msg.NewDapp = &ev
	case TypeProfileUpdate:
		var ev ProfileUpdateEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return Message{}, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		msg.ProfileUpdate = &ev
	case TypeDownload:
		var ev DownloadEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return Message{}, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		msg.Download = &ev
	case TypeTip:
		var ev TipEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return Message{}, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		msg.Tip = &ev
	default:
		return msg, ErrUnknownType
	}
	return msg, nil
}

func encode(msgType string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Type: msgType, Data: data})
}

func defaulted(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
