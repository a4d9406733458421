package rbac

import (
	"time"

	"github.com/odyssey-erp/console/internal/domain"
)

// UnknownCreator is shown when a record's creator no longer resolves.
const UnknownCreator = "Unknown user"

// Meta carries addressing and audit data kept apart from business fields.
type Meta struct {
	ID        string    `json:"id"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// View is a record as a particular session may see it.
type View struct {
	Meta      Meta          `json:"meta"`
	Fields    domain.Fields `json:"fields"`
	CreatedBy string        `json:"createdBy,omitempty"`
}

// VisibleFields projects rec for sess. Reserved keys never appear among the
// business fields; only superadmins see who created the record.
func VisibleFields(sess *domain.Session, rec domain.Record) View {
	v := View{
		Meta: Meta{
			ID:        rec.ID,
			Version:   rec.Version,
			CreatedAt: rec.CreatedAt,
			UpdatedAt: rec.UpdatedAt,
		},
		Fields: rec.Fields.Sanitize(),
	}
	if sess.Authenticated() && sess.Role == domain.RoleSuperadmin {
		v.CreatedBy = rec.CreatorName
		if v.CreatedBy == "" {
			v.CreatedBy = UnknownCreator
		}
	}
	return v
}
