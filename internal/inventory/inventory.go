// Package inventory loads labs and cabinet sets for the lab picker.
package inventory

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"lablog-console/internal/model"
	"lablog-console/internal/upstream"
)

// Set is the view model of one cabinet on the lab picker.
type Set struct {
	model.CabinetRecord
	Manufacturer string              `json:"manufacturer"`
	Variant      string              `json:"variant"`
	Status       model.CabinetStatus `json:"status"`
	Color        string              `json:"color"`
}

// Catalog is everything derived from one lab's inventory.
type Catalog struct {
	LabID         string                `json:"lab_id"`
	Cabinets      []model.CabinetRecord `json:"-"`
	Manufacturers []string              `json:"manufacturers"`
	Variants      []string              `json:"variants"`
	Sets          []Set                 `json:"sets"`
}

// Service fetches inventory through an upstream backend.
type Service struct {
	backend upstream.Backend
	labs    *cache.Cache
	ttl     time.Duration
}

// NewService creates an inventory service. Lab lists are cached per token for
// ttl; a zero ttl disables the cache.
func NewService(backend upstream.Backend, ttl time.Duration) *Service {
	return &Service{
		backend: backend,
		labs:    cache.New(ttl, 2*ttl+time.Minute),
		ttl:     ttl,
	}
}

// Labs returns the lab list with 1-based ordinals. On error the list is empty.
func (s *Service) Labs(ctx context.Context, token string) ([]model.Lab, error) {
	if s.ttl > 0 {
		if v, found := s.labs.Get(token); found {
			return v.([]model.Lab), nil
		}
	}

	entries, err := s.backend.ListLabs(ctx, token)
	if err != nil {
		log.Printf("Failed to list labs: %v", err)
		return []model.Lab{}, err
	}

	labs := make([]model.Lab, 0, len(entries))
	for i, e := range entries {
		labs = append(labs, model.Lab{
			LabID:   e.LabID.String(),
			LabName: e.LabName,
			Ordinal: i + 1,
		})
	}
	if s.ttl > 0 {
		s.labs.Set(token, labs, s.ttl)
	}
	return labs, nil
}

// Lab finds one lab by id in the (possibly cached) lab list.
func (s *Service) Lab(ctx context.Context, token, labID string) (model.Lab, error) {
	labs, err := s.Labs(ctx, token)
	if err != nil {
		return model.Lab{}, err
	}
	for _, l := range labs {
		if l.LabID == labID {
			return l, nil
		}
	}
	return model.Lab{}, upstream.Validation("Lab %s was not found.", labID)
}

// Load fetches and joins the cabinet inventory of a lab. Any error yields an
// empty catalog so nothing partial is shown.
func (s *Service) Load(ctx context.Context, token, labID string) (Catalog, error) {
	if strings.TrimSpace(labID) == "" {
		return Catalog{}, upstream.Validation("Please select a lab.")
	}
	entries, err := s.backend.GetInventory(ctx, token, labID)
	if err != nil {
		log.Printf("Failed to load inventory for lab %s: %v", labID, err)
		return Catalog{}, err
	}
	return BuildCatalog(labID, entries), nil
}

// BuildCatalog joins raw inventory rows by cabinet id and derives the facets.
func BuildCatalog(labID string, entries []upstream.CabinetEntry) Catalog {
	byID := make(map[string]int)
	var cabinets []model.CabinetRecord
	manufacturers := make(map[string]struct{})
	variants := make(map[string]struct{})

	for _, e := range entries {
		id := e.CabinetID.String()
		if id == "" {
			continue
		}
		idx, seen := byID[id]
		if !seen {
			cab := model.CabinetRecord{
				CabinetID: id,
				LabID:     e.LabID.String(),
				IsActive:  e.IsActive,
			}
			if cab.LabID == "" {
				cab.LabID = labID
			}
			cabinets = append(cabinets, cab)
			idx = len(cabinets) - 1
			byID[id] = idx
		}
		cab := &cabinets[idx]

		if e.DeviceType != nil && *e.DeviceType != "" {
			if cab.DeviceTypeTag == "" {
				cab.DeviceTypeTag = *e.DeviceType
			}
			manufacturers[*e.DeviceType] = struct{}{}
		}
		if e.Variant != nil && *e.Variant != "" {
			if cab.VariantTag == "" {
				cab.VariantTag = *e.Variant
			}
			variants[*e.Variant] = struct{}{}
		}
		if e.IsActive {
			cab.IsActive = true
		}

		for _, d := range e.MeterSet {
			dev := d.ToDevice()
			if len(cab.Devices) == 0 {
				cab.FirstDeviceState = dev.DeviceState
			}
			if dev.DeviceState == model.DeviceStateCommissioned {
				cab.HasCommissionedDevice = true
			}
			cab.Devices = append(cab.Devices, dev)
		}
	}

	cat := Catalog{
		LabID:         labID,
		Cabinets:      cabinets,
		Manufacturers: sortedKeys(manufacturers),
		Variants:      sortedKeys(variants),
	}
	for _, c := range cabinets {
		cat.Sets = append(cat.Sets, newSet(c))
	}
	return cat
}

func newSet(c model.CabinetRecord) Set {
	status := c.Status()
	return Set{
		CabinetRecord: c,
		Manufacturer:  c.DeviceTypeTag,
		Variant:       c.VariantTag,
		Status:        status,
		Color:         status.Color(),
	}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Filter returns the sets matching the manufacturer and variant. An empty
// value matches everything.
func (c Catalog) Filter(manufacturer, variant string) []Set {
	out := make([]Set, 0, len(c.Sets))
	for _, s := range c.Sets {
		if manufacturer != "" && s.Manufacturer != manufacturer {
			continue
		}
		if variant != "" && s.Variant != variant {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Open arms the selection of one cabinet for the set detail screen.
func (c Catalog) Open(lab model.Lab, cabinetID string) (model.Selection, error) {
	if lab.LabID != c.LabID {
		return model.Selection{}, upstream.Validation("The selected cabinet does not belong to lab %s.", lab.LabName)
	}
	for _, s := range c.Sets {
		if s.CabinetID != cabinetID {
			continue
		}
		devices := make([]model.DeviceInfo, len(s.Devices))
		copy(devices, s.Devices)
		return model.Selection{
			LabID:        lab.LabID,
			LabName:      lab.LabName,
			LabOrdinal:   lab.Ordinal,
			CabinetID:    s.CabinetID,
			Manufacturer: s.Manufacturer,
			Variant:      s.Variant,
			Devices:      devices,
		}, nil
	}
	return model.Selection{}, upstream.Validation("Cabinet %s was not found in this lab.", cabinetID)
}

// String is used in log lines.
func (c Catalog) String() string {
	return fmt.Sprintf("lab %s: %d cabinets, %d manufacturers, %d variants",
		c.LabID, len(c.Cabinets), len(c.Manufacturers), len(c.Variants))
}
