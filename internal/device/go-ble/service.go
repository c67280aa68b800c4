package goble

import (
	"github.com/srg/voltlog/internal/device"
)

// ----------------------------
// BLE Service
// ----------------------------

// BLEService represents a GATT service and its characteristics.
// Characteristics keep the order in which the peripheral reported them.
type BLEService struct {
	uuid            string
	knownName       string
	order           []string
	Characteristics map[string]*BLECharacteristic
}

func newService(rawUUID string) *BLEService {
	return &BLEService{
		uuid:            device.NormalizeUUID(rawUUID),
		knownName:       device.LookupService(rawUUID),
		Characteristics: make(map[string]*BLECharacteristic),
	}
}

func (s *BLEService) UUID() string {
	return s.uuid
}

func (s *BLEService) KnownName() string {
	return s.knownName
}

func (s *BLEService) GetCharacteristics() []device.Characteristic {
	result := make([]device.Characteristic, 0, len(s.order))
	for _, uuid := range s.order {
		result = append(result, s.Characteristics[uuid])
	}
	return result
}

func (s *BLEService) addCharacteristic(c *BLECharacteristic) {
	if _, ok := s.Characteristics[c.uuid]; !ok {
		s.order = append(s.order, c.uuid)
	}
	s.Characteristics[c.uuid] = c
}
