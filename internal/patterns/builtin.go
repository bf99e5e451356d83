package patterns

// Names of the built-in patterns. Strategies and the risk scorer key
// category-specific behavior off these names.
const (
	Email      = "email"
	Phone      = "phone"
	SSN        = "ssn"
	CreditCard = "creditCard"
	IPv4       = "ipv4"
	IPv6       = "ipv6"
	URL        = "url"
	Date       = "date"
	MACAddress = "macAddress"
)

// Builtins returns the built-in pattern catalog in its default scan order
func Builtins() []Definition {
	return []Definition{
		{
			Name:        Email,
			Source:      `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`,
			Description: "Email addresses",
			Class:       ClassMedium,
		},
		{
			Name:        Phone,
			Source:      `(?:\+?1[-.\s]?)?(?:\(\d{3}\)|\b\d{3})[-.\s]?\d{3}[-.\s]?\d{4}\b`,
			Description: "North American phone numbers",
			Class:       ClassMedium,
		},
		{
			Name:        SSN,
			Source:      `\b\d{3}-\d{2}-\d{4}\b`,
			Description: "US Social Security numbers",
			Class:       ClassHigh,
		},
		{
			Name:        CreditCard,
			Source:      `\b(?:\d{4}[-\s]?){3}\d{4}\b`,
			Description: "Credit card numbers",
			Class:       ClassHigh,
		},
		{
			Name:        IPv4,
			Source:      `\b(?:(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\.){3}(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\b`,
			Description: "IPv4 addresses",
			Class:       ClassMedium,
		},
		{
			Name:        IPv6,
			Source:      `\b(?:[0-9A-Fa-f]{1,4}:){7}[0-9A-Fa-f]{1,4}\b`,
			Description: "IPv6 addresses (full form)",
			Class:       ClassMedium,
		},
		{
			Name:        URL,
			Source:      `\bhttps?://[^\s<>"']+`,
			Description: "HTTP and HTTPS URLs",
			Class:       ClassLow,
		},
		{
			Name:        Date,
			Source:      `\b\d{4}-\d{2}-\d{2}\b|\b\d{1,2}/\d{1,2}/\d{2,4}\b`,
			Description: "Calendar dates",
			Class:       ClassLow,
		},
		{
			Name:        MACAddress,
			Source:      `\b(?:[0-9A-Fa-f]{2}[:-]){5}[0-9A-Fa-f]{2}\b`,
			Description: "MAC addresses",
			Class:       ClassLow,
		},
	}
}

// ClassFor returns the built-in sensitivity class for name, or ClassOther
// for names outside the built-in catalog.
func ClassFor(name string) Class {
	for _, def := range Builtins() {
		if def.Name == name {
			return def.Class
		}
	}
	return ClassOther
}
