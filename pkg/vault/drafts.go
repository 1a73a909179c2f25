package vault

import (
	"encoding/json"
	"fmt"

	"github.com/ispacehq/ivault/pkg/catalog"
)

// DraftKey is the settings key holding the in-progress add-item form.
const DraftKey = "inProgressItemDraft"

// Draft is the state of a partially filled add-item form, persisted so
// an interrupted entry can be resumed. Drafts are transient: they are
// discarded on service construction, on a successful save and on an
// explicit cancel.
type Draft struct {
	Name string           `json:"name"`
	Type catalog.ItemType `json:"type"`

	Website  string `json:"website,omitempty"`
	Username string `json:"username,omitempty"`
	Secret   string `json:"secret,omitempty"`

	CardHolderName string `json:"cardHolderName,omitempty"`
	CardNumber     string `json:"cardNumber,omitempty"`
	ExpiryDate     string `json:"expiryDate,omitempty"`
	CVV            string `json:"cvv,omitempty"`

	FileName     string       `json:"fileName,omitempty"`
	DocumentType DocumentType `json:"documentType,omitempty"`
}

// SaveDraft persists the draft, replacing any previous one.
func (s *Service) SaveDraft(d Draft) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return s.settings.Set(DraftKey, data)
}

// LoadDraft returns the persisted draft if one exists. A corrupt draft
// blob is treated as absent.
func (s *Service) LoadDraft() (Draft, bool, error) {
	data, ok, err := s.settings.Get(DraftKey)
	if err != nil {
		return Draft{}, false, err
	}
	if !ok {
		return Draft{}, false, nil
	}

	var d Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return Draft{}, false, nil
	}
	return d, true, nil
}

// ClearDraft discards any persisted draft. Clearing an absent draft is
// a no-op.
func (s *Service) ClearDraft() error {
	return s.settings.Delete(DraftKey)
}
