package inspector

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/srg/voltlog/internal/device"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// CharacteristicReport describes one characteristic of a service
type CharacteristicReport struct {
	UUID        string   `json:"uuid"`
	Service     string   `json:"service"`
	Description string   `json:"description"`
	Properties  []string `json:"properties"`
}

// ServiceReport describes one service and its characteristics in discovery order
type ServiceReport struct {
	UUID            string                 `json:"uuid"`
	Description     string                 `json:"description"`
	Characteristics []CharacteristicReport `json:"characteristics"`
}

// Report is the GATT profile of a connected device. Services keep discovery order.
type Report struct {
	Address  string                                         `json:"address"`
	Name     string                                         `json:"name,omitempty"`
	Services *orderedmap.OrderedMap[string, *ServiceReport] `json:"services"`
}

// Inspect builds a Report from the live connection of dev
func Inspect(dev device.Device) (*Report, error) {
	conn := dev.GetConnection()
	if conn == nil || !dev.IsConnected() {
		return nil, device.ErrNotConnected
	}

	report := &Report{
		Address:  dev.Address(),
		Name:     dev.Name(),
		Services: orderedmap.New[string, *ServiceReport](),
	}
	for _, svc := range conn.Services() {
		sr := &ServiceReport{
			UUID:            displayUUID(svc.UUID()),
			Description:     describe(svc.KnownName()),
			Characteristics: []CharacteristicReport{},
		}
		for _, ch := range svc.GetCharacteristics() {
			props := device.PropertyNames(ch.GetProperties())
			if props == nil {
				props = []string{}
			}
			sr.Characteristics = append(sr.Characteristics, CharacteristicReport{
				UUID:        displayUUID(ch.UUID()),
				Service:     sr.UUID,
				Description: describe(ch.KnownName()),
				Properties:  props,
			})
		}
		report.Services.Set(sr.UUID, sr)
	}
	return report, nil
}

// Characteristics flattens all characteristics across services in discovery order
func (r *Report) Characteristics() []CharacteristicReport {
	var out []CharacteristicReport
	for pair := r.Services.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value.Characteristics...)
	}
	return out
}

// WriteText prints every service, then every characteristic, each block
// introduced by a "-----" separator
func (r *Report) WriteText(w io.Writer, colored bool) error {
	label := color.New(color.FgCyan, color.Bold)
	value := color.New(color.FgWhite)
	if colored {
		label.EnableColor()
		value.EnableColor()
	} else {
		label.DisableColor()
		value.DisableColor()
	}

	var b strings.Builder
	for pair := r.Services.Oldest(); pair != nil; pair = pair.Next() {
		svc := pair.Value
		b.WriteString("-----\n")
		b.WriteString(label.Sprint("SERVICE: ") + "\n")
		b.WriteString(value.Sprintf("%s: %s", svc.UUID, svc.Description) + "\n")
	}
	for _, ch := range r.Characteristics() {
		b.WriteString("-----\n")
		b.WriteString(label.Sprint("DESCRIPTION: ") + ch.Description + "\n")
		b.WriteString(label.Sprint("UUID: ") + ch.UUID + "\n")
		b.WriteString(label.Sprint("PROPERTIES: ") + strings.Join(ch.Properties, ", ") + "\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteJSON prints the report as indented JSON
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode inspection report: %w", err)
	}
	return nil
}

func describe(knownName string) string {
	if knownName == "" {
		return device.UnknownName
	}
	return knownName
}

// displayUUID renders 128-bit UUIDs in dashed canonical form and leaves
// 16/32-bit SIG aliases short
func displayUUID(u string) string {
	if len(u) == 32 {
		if id, err := uuid.Parse(u); err == nil {
			return id.String()
		}
	}
	return u
}
