package models

import (
	"time"

	"github.com/google/uuid"
)

// TenantSnapshot is one consistent read of a tenant's working set.
type TenantSnapshot struct {
	TenantID uuid.UUID  `json:"tenant_id"`
	Invoices []*Invoice `json:"invoices"`
	Clients  []*Client  `json:"clients"`
	Services []*Service `json:"services"`
	SyncedAt time.Time  `json:"synced_at"`
}

// ClientByID looks a client up in the snapshot.
func (s *TenantSnapshot) ClientByID(id uuid.UUID) (*Client, bool) {
	if s == nil {
		return nil, false
	}
	for _, c := range s.Clients {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

func (s *TenantSnapshot) ServiceByID(id uuid.UUID) (*Service, bool) {
	if s == nil {
		return nil, false
	}
	for _, svc := range s.Services {
		if svc.ID == id {
			return svc, true
		}
	}
	return nil, false
}
