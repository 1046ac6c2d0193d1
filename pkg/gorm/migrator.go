package gorm

import (
	"fmt"
	"slices"
	"strings"

	"github.com/kasuganosora/orientsql/pkg/orientdb"

	"gorm.io/gorm"
	"gorm.io/gorm/migrator"
	"gorm.io/gorm/schema"
)

// Migrator 用 OrientDB 的 CLASS/PROPERTY/INDEX 命令实现迁移，
// 元数据通过适配器的哨兵查询获取
type Migrator struct {
	migrator.Migrator
	Dialector *Dialector
}

func newMigrator(d *Dialector, db *gorm.DB) Migrator {
	return Migrator{
		Migrator: migrator.Migrator{Config: migrator.Config{
			DB:        db,
			Dialector: d,
		}},
		Dialector: d,
	}
}

// CurrentDatabase 返回当前数据库名
func (m Migrator) CurrentDatabase() string {
	if m.Dialector.Config != nil {
		return m.Dialector.Config.Database
	}
	return ""
}

// AutoMigrate 创建缺失的类，已有的类只补充缺失的属性
func (m Migrator) AutoMigrate(values ...interface{}) error {
	for _, value := range values {
		if !m.HasTable(value) {
			if err := m.CreateTable(value); err != nil {
				return err
			}
			continue
		}

		err := m.RunWithValue(value, func(stmt *gorm.Statement) error {
			existing, err := m.columnNames(stmt.Table)
			if err != nil {
				return err
			}
			for _, dbName := range stmt.Schema.DBNames {
				field := stmt.Schema.FieldsByDBName[dbName]
				if field.IgnoreMigration || containsFold(existing, dbName) {
					continue
				}
				if err := m.exec(m.propertySQL(stmt.Table, field)); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// CreateTable 创建类，为每个字段创建属性，主键和 unique 字段建唯一索引
func (m Migrator) CreateTable(values ...interface{}) error {
	for _, value := range values {
		err := m.RunWithValue(value, func(stmt *gorm.Statement) error {
			if err := m.exec("CREATE CLASS " + stmt.Table); err != nil {
				return fmt.Errorf("failed to create class %s: %w", stmt.Table, err)
			}
			var unique []string
			for _, dbName := range stmt.Schema.DBNames {
				field := stmt.Schema.FieldsByDBName[dbName]
				if field.IgnoreMigration || dbName == orientdb.RIDColumn {
					continue
				}
				if err := m.exec(m.propertySQL(stmt.Table, field)); err != nil {
					return err
				}
				if field.PrimaryKey || field.Unique {
					unique = append(unique, dbName)
				}
			}
			for _, dbName := range unique {
				if err := m.exec(fmt.Sprintf("CREATE INDEX %s.%s UNIQUE", stmt.Table, dbName)); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// DropTable 删除类
func (m Migrator) DropTable(values ...interface{}) error {
	for i := len(values) - 1; i >= 0; i-- {
		err := m.RunWithValue(values[i], func(stmt *gorm.Statement) error {
			return m.exec("DROP CLASS " + stmt.Table)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// HasTable 检查类是否存在，类名不区分大小写
func (m Migrator) HasTable(value interface{}) bool {
	var found bool
	m.RunWithValue(value, func(stmt *gorm.Statement) error {
		tables, err := m.GetTables()
		if err != nil {
			return err
		}
		found = containsFold(tables, stmt.Table)
		return nil
	})
	return found
}

// GetTables 返回所有类名
func (m Migrator) GetTables() ([]string, error) {
	return m.metadataColumn(orientdb.SentinelListTables, "name")
}

// RenameTable 重命名类
func (m Migrator) RenameTable(oldName, newName interface{}) error {
	from, err := m.tableName(oldName)
	if err != nil {
		return err
	}
	to, err := m.tableName(newName)
	if err != nil {
		return err
	}
	return m.exec(fmt.Sprintf("ALTER CLASS %s NAME %s", from, to))
}

// AddColumn 创建属性
func (m Migrator) AddColumn(value interface{}, name string) error {
	return m.RunWithValue(value, func(stmt *gorm.Statement) error {
		field := lookUpField(stmt, name)
		if field == nil {
			return fmt.Errorf("failed to look up field with name: %s", name)
		}
		return m.exec(m.propertySQL(stmt.Table, field))
	})
}

// DropColumn 删除属性
func (m Migrator) DropColumn(value interface{}, name string) error {
	return m.RunWithValue(value, func(stmt *gorm.Statement) error {
		if field := lookUpField(stmt, name); field != nil {
			name = field.DBName
		}
		return m.exec(fmt.Sprintf("DROP PROPERTY %s.%s", stmt.Table, name))
	})
}

// RenameColumn 重命名属性
func (m Migrator) RenameColumn(value interface{}, oldName, newName string) error {
	return m.RunWithValue(value, func(stmt *gorm.Statement) error {
		if field := lookUpField(stmt, oldName); field != nil {
			oldName = field.DBName
		}
		if field := lookUpField(stmt, newName); field != nil {
			newName = field.DBName
		}
		return m.exec(fmt.Sprintf("ALTER PROPERTY %s.%s NAME %s", stmt.Table, oldName, newName))
	})
}

// HasColumn 检查属性是否存在
func (m Migrator) HasColumn(value interface{}, name string) bool {
	var found bool
	m.RunWithValue(value, func(stmt *gorm.Statement) error {
		if field := lookUpField(stmt, name); field != nil {
			name = field.DBName
		}
		cols, err := m.columnNames(stmt.Table)
		if err != nil {
			return err
		}
		found = containsFold(cols, name)
		return nil
	})
	return found
}

// CreateIndex 在属性上建索引，unique 字段建唯一索引
func (m Migrator) CreateIndex(value interface{}, name string) error {
	return m.RunWithValue(value, func(stmt *gorm.Statement) error {
		typ := "NOTUNIQUE"
		if field := lookUpField(stmt, name); field != nil {
			name = field.DBName
			if field.Unique || field.PrimaryKey {
				typ = "UNIQUE"
			}
		}
		return m.exec(fmt.Sprintf("CREATE INDEX %s.%s %s", stmt.Table, name, typ))
	})
}

// DropIndex 删除索引
func (m Migrator) DropIndex(value interface{}, name string) error {
	return m.RunWithValue(value, func(stmt *gorm.Statement) error {
		if field := lookUpField(stmt, name); field != nil {
			name = field.DBName
		}
		return m.exec(fmt.Sprintf("DROP INDEX %s.%s", stmt.Table, name))
	})
}

// HasIndex 检查索引是否存在，name 可以是字段名或列名
func (m Migrator) HasIndex(value interface{}, name string) bool {
	var found bool
	m.RunWithValue(value, func(stmt *gorm.Statement) error {
		if field := lookUpField(stmt, name); field != nil {
			name = field.DBName
		}
		keys, err := m.metadataColumn(orientdb.ComposeSentinel(stmt.Table, orientdb.SentinelListTableIndexes), "Key_name")
		if err != nil {
			return err
		}
		found = containsFold(keys, name)
		return nil
	})
	return found
}

// propertySQL CREATE PROPERTY t.f TYPE，not null 字段带约束
func (m Migrator) propertySQL(table string, field *schema.Field) string {
	sql := fmt.Sprintf("CREATE PROPERTY %s.%s %s", table, field.DBName, m.Dialector.DataTypeOf(field))
	if field.NotNull {
		sql += " (MANDATORY TRUE, NOTNULL TRUE)"
	}
	return sql
}

func (m Migrator) columnNames(table string) ([]string, error) {
	return m.metadataColumn(orientdb.ComposeSentinel(table, orientdb.SentinelListTableColumns), "name")
}

// metadataColumn 执行元数据哨兵查询，返回指定列的所有值
func (m Migrator) metadataColumn(sentinel, column string) ([]string, error) {
	rows, err := m.DB.Session(&gorm.Session{NewDB: true}).Raw(sentinel).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	idx := slices.Index(cols, column)
	if idx < 0 {
		return nil, fmt.Errorf("metadata result has no %q column", column)
	}

	var out []string
	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		switch v := vals[idx].(type) {
		case string:
			out = append(out, v)
		case []byte:
			out = append(out, string(v))
		case nil:
		default:
			out = append(out, fmt.Sprint(v))
		}
	}
	return out, rows.Err()
}

func (m Migrator) exec(sql string) error {
	return m.DB.Session(&gorm.Session{NewDB: true}).Exec(sql).Error
}

func (m Migrator) tableName(value interface{}) (string, error) {
	var name string
	err := m.RunWithValue(value, func(stmt *gorm.Statement) error {
		name = stmt.Table
		return nil
	})
	return name, err
}

func lookUpField(stmt *gorm.Statement, name string) *schema.Field {
	if stmt.Schema == nil {
		return nil
	}
	return stmt.Schema.LookUpField(name)
}

func containsFold(list []string, s string) bool {
	return slices.ContainsFunc(list, func(v string) bool { return strings.EqualFold(v, s) })
}
