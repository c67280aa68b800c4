package device

import "strings"

// Characteristic property bits as defined by the Core Specification (Vol 3, Part G, 3.3.1.1)
const (
	PropBroadcast            = 0x01
	PropRead                 = 0x02
	PropWriteWithoutResponse = 0x04
	PropWrite                = 0x08
	PropNotify               = 0x10
	PropIndicate             = 0x20
	PropSignedWrite          = 0x40
	PropExtended             = 0x80
)

type property struct {
	value int
	name  string
}

func (p *property) Value() int        { return p.value }
func (p *property) KnownName() string { return p.name }

// flagProperties implements Properties over a raw property bitmask
type flagProperties struct {
	flags int
}

// NewProperties creates a Properties instance from characteristic property bit flags.
func NewProperties(flags int) Properties {
	return &flagProperties{flags: flags}
}

// ParseProperties builds Properties from names such as "read,notify".
// Unknown names are ignored.
func ParseProperties(names ...string) Properties {
	flags := 0
	for _, n := range strings.Split(strings.Join(names, ","), ",") {
		switch strings.ToLower(strings.TrimSpace(n)) {
		case "broadcast":
			flags |= PropBroadcast
		case "read":
			flags |= PropRead
		case "write-without-response", "write_without_response":
			flags |= PropWriteWithoutResponse
		case "write":
			flags |= PropWrite
		case "notify":
			flags |= PropNotify
		case "indicate":
			flags |= PropIndicate
		case "authenticated-signed-writes":
			flags |= PropSignedWrite
		case "extended-properties":
			flags |= PropExtended
		}
	}
	return NewProperties(flags)
}

func (p *flagProperties) get(bit int, name string) Property {
	if p.flags&bit == 0 {
		return nil
	}
	return &property{value: bit, name: name}
}

func (p *flagProperties) Broadcast() Property { return p.get(PropBroadcast, "Broadcast") }
func (p *flagProperties) Read() Property      { return p.get(PropRead, "Read") }
func (p *flagProperties) Write() Property     { return p.get(PropWrite, "Write") }
func (p *flagProperties) WriteWithoutResponse() Property {
	return p.get(PropWriteWithoutResponse, "WriteWithoutResponse")
}
func (p *flagProperties) Notify() Property   { return p.get(PropNotify, "Notify") }
func (p *flagProperties) Indicate() Property { return p.get(PropIndicate, "Indicate") }
func (p *flagProperties) AuthenticatedSignedWrites() Property {
	return p.get(PropSignedWrite, "AuthenticatedSignedWrites")
}
func (p *flagProperties) ExtendedProperties() Property {
	return p.get(PropExtended, "ExtendedProperties")
}

// CanNotify reports whether the characteristic supports notifications or indications
func CanNotify(p Properties) bool {
	return p != nil && (p.Notify() != nil || p.Indicate() != nil)
}
