package sop

import (
	"context"
	"fmt"

	"tellerdesk/internal/domain"
)

// Steps is the slice of the store the catalog needs.
type Steps interface {
	SOPStepsForService(ctx context.Context, serviceID string) ([]domain.SOPStep, error)
	UpsertService(ctx context.Context, serviceID, name string, steps []domain.SOPStep) error
}

// Catalog serves canonical SOP step lists from the durable catalog tables.
type Catalog struct {
	store Steps
}

// NewCatalog builds a catalog over the given store.
func NewCatalog(store Steps) *Catalog {
	return &Catalog{store: store}
}

// ServiceSteps returns the ordered step list for a service.
func (c *Catalog) ServiceSteps(ctx context.Context, serviceID string) ([]domain.SOPStep, error) {
	steps, err := c.store.SOPStepsForService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("service %s has no SOP steps", serviceID)
	}
	return steps, nil
}

// Seed installs the built-in branch services and their procedures. Existing
// entries are replaced, so running it on every startup is safe.
func (c *Catalog) Seed(ctx context.Context) error {
	for _, svc := range defaultServices() {
		if err := c.store.UpsertService(ctx, svc.id, svc.name, svc.steps); err != nil {
			return fmt.Errorf("seed %s: %w", svc.id, err)
		}
	}
	return nil
}

type seedService struct {
	id    string
	name  string
	steps []domain.SOPStep
}

func defaultServices() []seedService {
	return []seedService{
		{
			id:   "SV0001",
			name: "Pembukaan Rekening",
			steps: []domain.SOPStep{
				{ID: "ST0001", ServiceID: "SV0001", Number: 1, Label: "Verifikasi identitas nasabah (KTP/NPWP)"},
				{ID: "ST0002", ServiceID: "SV0001", Number: 2, Label: "Jelaskan jenis rekening dan biaya administrasi"},
				{ID: "ST0003", ServiceID: "SV0001", Number: 3, Label: "Isi dan tanda tangan formulir pembukaan"},
				{ID: "ST0004", ServiceID: "SV0001", Number: 4, Label: "Setoran awal dan aktivasi rekening"},
				{ID: "ST0005", ServiceID: "SV0001", Number: 5, Label: "Serahkan buku tabungan dan kartu"},
			},
		},
		{
			id:   "SV0002",
			name: "Penggantian Kartu ATM",
			steps: []domain.SOPStep{
				{ID: "ST0006", ServiceID: "SV0002", Number: 1, Label: "Verifikasi identitas dan kepemilikan rekening"},
				{ID: "ST0007", ServiceID: "SV0002", Number: 2, Label: "Blokir kartu lama"},
				{ID: "ST0008", ServiceID: "SV0002", Number: 3, Label: "Cetak dan aktivasi kartu pengganti"},
				{ID: "ST0009", ServiceID: "SV0002", Number: 4, Label: "Konfirmasi PIN baru dengan nasabah"},
			},
		},
		{
			id:   "SV0003",
			name: "Pendaftaran m-BCA",
			steps: []domain.SOPStep{
				{ID: "ST0010", ServiceID: "SV0003", Number: 1, Label: "Verifikasi identitas dan nomor ponsel aktif"},
				{ID: "ST0011", ServiceID: "SV0003", Number: 2, Label: "Registrasi m-BCA di sistem"},
				{ID: "ST0012", ServiceID: "SV0003", Number: 3, Label: "Pandu instalasi dan aktivasi aplikasi"},
				{ID: "ST0013", ServiceID: "SV0003", Number: 4, Label: "Uji transaksi pertama bersama nasabah"},
			},
		},
	}
}
