package repository

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"

	"github.com/joseph-ayodele/orders-tracker/constants"
)

const (
	usersTableName = "users"
	jobsTableName  = "jobs"
)

var (
	usersColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "email", Type: field.TypeString, Unique: true, Size: 320},
		{Name: "created_at", Type: field.TypeTime},
	}
	usersTable = &schema.Table{
		Name:       usersTableName,
		Columns:    usersColumns,
		PrimaryKey: []*schema.Column{usersColumns[0]},
	}

	jobsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "owner_id", Type: field.TypeUUID},
		{Name: "file_ref", Type: field.TypeString, Size: 2048},
		{Name: "state", Type: field.TypeEnum, Enums: constants.StatusStrings(), Default: string(constants.JobStatusPending)},
		{Name: "submitted_at", Type: field.TypeTime},
		{Name: "started_at", Type: field.TypeTime, Nullable: true},
		{Name: "claimed_by", Type: field.TypeString, Nullable: true, Size: 255},
		{Name: "completed_at", Type: field.TypeTime, Nullable: true},
		{Name: "total_revenue", Type: field.TypeFloat64, Nullable: true},
		{Name: "total_items", Type: field.TypeFloat64, Nullable: true},
		{Name: "average_order_value", Type: field.TypeFloat64, Nullable: true},
		{Name: "error_detail", Type: field.TypeString, Nullable: true, Size: 2147483647},
	}
	jobsTable = &schema.Table{
		Name:       jobsTableName,
		Columns:    jobsColumns,
		PrimaryKey: []*schema.Column{jobsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "jobs_users_jobs",
				Columns:    []*schema.Column{jobsColumns[1]},
				RefColumns: []*schema.Column{usersColumns[0]},
				OnDelete:   schema.NoAction,
			},
		},
		Indexes: []*schema.Index{
			{Name: "job_state_submitted_at_id", Columns: []*schema.Column{jobsColumns[3], jobsColumns[4], jobsColumns[0]}},
			{Name: "job_owner_id_submitted_at", Columns: []*schema.Column{jobsColumns[1], jobsColumns[4]}},
		},
	}

	// Tables holds every table this service owns, in creation order.
	Tables = []*schema.Table{usersTable, jobsTable}
)

func init() {
	jobsTable.ForeignKeys[0].RefTable = usersTable
}

// Migrate creates or upgrades the users and jobs tables.
func Migrate(ctx context.Context, db *DB) error {
	m, err := schema.NewMigrate(db.drv)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	if err := m.Create(ctx, Tables...); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// columns lists column names in table order, for SELECT and INSERT statements.
func columns(cols []*schema.Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}
