package peer

import "time"

// Identity represents one known participant who may publish a catalog.
// Identities are never deleted; a newer-timestamped update for the same
// address supersedes the previous version.
type Identity struct {
	Address            string    `json:"address"`
	DisplayName        string    `json:"display_name,omitempty"`
	CatalogURL         string    `json:"catalog_url,omitempty"`
	LiveChannelAddress string    `json:"live_channel_address,omitempty"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// PublishesCatalog reports whether the peer declares a discoverable catalog.
func (i Identity) PublishesCatalog() bool {
	return i.CatalogURL != ""
}

// Profile is an identity record decoded from the permanent registry.
type Profile struct {
	Address            string    `json:"address"`
	DisplayName        string    `json:"display_name,omitempty"`
	CatalogURL         string    `json:"catalog_url,omitempty"`
	LiveChannelAddress string    `json:"live_channel_address,omitempty"`
	TransactionID      string    `json:"transaction_id,omitempty"`
	RegisteredAt       time.Time `json:"registered_at"`
}

// Identity converts a registry profile into a peer identity.
func (p Profile) Identity() Identity {
	return Identity{
		Address:            p.Address,
		DisplayName:        p.DisplayName,
		CatalogURL:         p.CatalogURL,
		LiveChannelAddress: p.LiveChannelAddress,
		UpdatedAt:          p.RegisteredAt,
	}
}
