package certificate

import (
	"context"
	"fmt"
)

// Get returns a certificate by id.
func (m *Manager) Get(ctx context.Context, id uint) (*Certificate, error) {
	c, err := m.certs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, certificateNotFound(id)
	}
	return c, nil
}

// GetForEmployee returns a certificate only if employeeID owns it.
func (m *Manager) GetForEmployee(ctx context.Context, id, employeeID uint) (*Certificate, error) {
	c, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.EmployeeID != employeeID {
		return nil, &Error{Kind: KindValidation, Code: CodeNotOwner,
			Message: fmt.Sprintf("certificate %d does not belong to employee %d", id, employeeID)}
	}
	return c, nil
}

// ListPending returns the review queue, most recently submitted first.
func (m *Manager) ListPending(ctx context.Context, page Page) ([]Certificate, int64, error) {
	return m.certs.ListPending(ctx, page)
}

// List returns certificates matching filter.
func (m *Manager) List(ctx context.Context, filter Filter, page Page) ([]Certificate, int64, error) {
	return m.certs.List(ctx, filter, page)
}

// ListForEmployee returns an employee's own certificates.
func (m *Manager) ListForEmployee(ctx context.Context, employeeID uint) ([]Certificate, error) {
	return m.certs.ListByEmployee(ctx, employeeID)
}
