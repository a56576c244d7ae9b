package dialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/bulkflow/pkg/bulkerrors"
)

var (
	orders  = Table{Schema: "sales", Name: "orders"}
	staging = Table{Name: "tmp_orders_insert"}
)

func TestFor(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{name: "postgres", want: NamePostgres},
		{name: "PostgreSQL", want: NamePostgres},
		{name: "pgx", want: NamePostgres},
		{name: "mysql", want: NameMySQL},
		{name: "sqlserver", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := For(tt.name)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, bulkerrors.IsType(err, bulkerrors.ErrorTypeConfig))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Name())
		})
	}
}

func TestTableString(t *testing.T) {
	assert.Equal(t, "sales.orders", orders.String())
	assert.Equal(t, "orders", Table{Name: "orders"}.String())
}

func TestQuoting(t *testing.T) {
	pg, my := Postgres(), MySQL()

	assert.Equal(t, `"order"`, pg.Quote("order"))
	assert.Equal(t, `"a""b"`, pg.Quote(`a"b`))
	assert.Equal(t, `"sales"."orders"`, pg.QualifiedName(orders))
	assert.Equal(t, `"orders"`, pg.QualifiedName(Table{Name: "orders"}))

	assert.Equal(t, "`order`", my.Quote("order"))
	assert.Equal(t, "`a``b`", my.Quote("a`b"))
	assert.Equal(t, "`sales`.`orders`", my.QualifiedName(orders))

	assert.Equal(t, "$3", pg.Placeholder(3))
	assert.Equal(t, "?", my.Placeholder(3))
}

func TestStagingTable(t *testing.T) {
	for _, d := range []Dialect{Postgres(), MySQL()} {
		t.Run(d.Name(), func(t *testing.T) {
			got := d.StagingTable(orders, "delete")
			assert.Equal(t, Table{Name: "tmp_orders_delete"}, got)
		})
	}
}

func TestPostgresStagingStatements(t *testing.T) {
	d := Postgres()

	assert.Equal(t,
		`CREATE TEMP TABLE "tmp_orders_insert" ON COMMIT DROP AS SELECT "id", "name" FROM "sales"."orders" LIMIT 0`,
		d.CreateStaging(staging, orders, []string{"id", "name"}))

	assert.Equal(t,
		`DELETE FROM "sales"."orders" AS t USING "tmp_orders_insert" AS src WHERE t."id" = src."id" AND t."region" = src."region"`,
		d.DeleteFromStaging(orders, staging, []string{"id", "region"}))

	assert.Equal(t, `DROP TABLE IF EXISTS "tmp_orders_insert"`, d.DropStaging(staging))
	assert.Equal(t, `LOCK TABLE "sales"."orders" IN SHARE ROW EXCLUSIVE MODE`, d.LockTable(orders))
	assert.True(t, d.SupportsReturning())
	assert.True(t, d.TransactionScopedStaging())
}

func TestPostgresInsertFromStaging(t *testing.T) {
	d := Postgres()

	tests := []struct {
		name     string
		write    []string
		read     []string
		override bool
		want     string
		wantErr  bool
	}{
		{
			name:  "write only",
			write: []string{"name"},
			want:  `INSERT INTO "sales"."orders" ("name") SELECT "name" FROM "tmp_orders_insert"`,
		},
		{
			name:  "returning",
			write: []string{"name"},
			read:  []string{"id", "created"},
			want:  `INSERT INTO "sales"."orders" ("name") SELECT "name" FROM "tmp_orders_insert" RETURNING "id", "created"`,
		},
		{
			name:     "identity override",
			write:    []string{"id", "name"},
			override: true,
			want:     `INSERT INTO "sales"."orders" ("id", "name") OVERRIDING SYSTEM VALUE SELECT "id", "name" FROM "tmp_orders_insert"`,
		},
		{
			name:    "no writable columns",
			read:    []string{"id"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.InsertFromStaging(orders, staging, tt.write, tt.read, tt.override)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, bulkerrors.IsType(err, bulkerrors.ErrorTypeUnsupported))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPostgresRowStatements(t *testing.T) {
	d := Postgres()

	sql, err := d.InsertRow(orders, []string{"name", "total"}, []string{"id"}, false)
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "sales"."orders" ("name", "total") VALUES ($1, $2) RETURNING "id"`, sql)

	sql, err = d.InsertRow(orders, nil, []string{"id"}, false)
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "sales"."orders" DEFAULT VALUES RETURNING "id"`, sql)

	sql, err = d.InsertRow(orders, []string{"id"}, nil, true)
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "sales"."orders" ("id") OVERRIDING SYSTEM VALUE VALUES ($1)`, sql)

	sql, err = d.UpdateRow(orders, []string{"name"}, []string{"id", "version"}, []string{"modified"})
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "sales"."orders" SET "name" = $1 WHERE "id" = $2 AND "version" = $3 RETURNING "modified"`, sql)

	sql, err = d.UpdateRow(orders, nil, []string{"id"}, []string{"modified"})
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "sales"."orders" SET "id" = "id" WHERE "id" = $1 RETURNING "modified"`, sql)

	_, err = d.UpdateRow(orders, []string{"name"}, nil, nil)
	assert.True(t, bulkerrors.IsType(err, bulkerrors.ErrorTypeValidation))

	assert.Equal(t, `DELETE FROM "sales"."orders" WHERE "id" = $1`, d.DeleteRow(orders, []string{"id"}))
}

func TestMySQLStatements(t *testing.T) {
	d := MySQL()

	assert.Equal(t,
		"CREATE TEMPORARY TABLE `tmp_orders_insert` SELECT `id`, `name` FROM `sales`.`orders` LIMIT 0",
		d.CreateStaging(staging, orders, []string{"id", "name"}))
	assert.Equal(t,
		"DELETE t FROM `sales`.`orders` AS t INNER JOIN `tmp_orders_insert` AS src ON t.`id` = src.`id`",
		d.DeleteFromStaging(orders, staging, []string{"id"}))
	assert.Equal(t, "DROP TEMPORARY TABLE IF EXISTS `tmp_orders_insert`", d.DropStaging(staging))
	assert.Empty(t, d.LockTable(orders))
	assert.False(t, d.SupportsReturning())
	assert.False(t, d.TransactionScopedStaging())

	sql, err := d.InsertFromStaging(orders, staging, []string{"name"}, nil, false)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO `sales`.`orders` (`name`) SELECT `name` FROM `tmp_orders_insert`", sql)

	_, err = d.InsertFromStaging(orders, staging, []string{"name"}, []string{"id"}, false)
	assert.True(t, bulkerrors.IsType(err, bulkerrors.ErrorTypeUnsupported))

	sql, err = d.InsertRow(orders, []string{"name"}, []string{"id"}, false)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO `sales`.`orders` (`name`) VALUES (?)", sql)

	sql, err = d.InsertRow(orders, nil, nil, false)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO `sales`.`orders` () VALUES ()", sql)

	sql, err = d.UpdateRow(orders, []string{"name", "total"}, []string{"id"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "UPDATE `sales`.`orders` SET `name` = ?, `total` = ? WHERE `id` = ?", sql)

	assert.Equal(t, "DELETE FROM `sales`.`orders` WHERE `id` = ? AND `region` = ?", d.DeleteRow(orders, []string{"id", "region"}))
}
