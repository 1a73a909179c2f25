package vault

// DocumentType classifies a document item's content so viewers know how
// to render the decrypted bytes.
type DocumentType string

const (
	DocumentPDF   DocumentType = "pdf"
	DocumentImage DocumentType = "image"
)

// Valid reports whether t is a known document type.
func (t DocumentType) Valid() bool {
	return t == DocumentPDF || t == DocumentImage
}

// Details is the typed secret payload stored for an item. Exactly one
// concrete type exists per item type.
type Details interface {
	isDetails()
}

// PasswordDetails is the payload of a password item.
type PasswordDetails struct {
	Website  string `json:"website"`
	Username string `json:"username"`
	Secret   string `json:"secret"`
}

func (PasswordDetails) isDetails() {}

// CardDetails is the payload of a card item.
type CardDetails struct {
	CardHolderName string `json:"cardHolderName"`
	CardNumber     string `json:"cardNumber"`
	ExpiryDate     string `json:"expiryDate"`
	CVV            string `json:"cvv"`
}

func (CardDetails) isDetails() {}

// DocumentDetails is the payload of a document item. It carries the
// document's metadata; the content itself is sealed separately in the
// file vault under a name derived from the item id.
type DocumentDetails struct {
	FileName     string       `json:"fileName"`
	DocumentType DocumentType `json:"documentType"`
}

func (DocumentDetails) isDetails() {}
