package enum

// ProviderService identifies an external system a credential belongs to.
type ProviderService string

const (
	ProviderServiceNetlify      ProviderService = "netlify"
	ProviderServiceForwardEmail ProviderService = "forwardemail"
	ProviderServiceZohoImap     ProviderService = "zoho-imap"
)

func (e ProviderService) String() string {
	return string(e)
}

func DecodeProviderService(s string) ProviderService {
	switch s {
	case "netlify":
		return ProviderServiceNetlify
	case "forwardemail":
		return ProviderServiceForwardEmail
	case "zoho-imap":
		return ProviderServiceZohoImap
	default:
		return ""
	}
}
