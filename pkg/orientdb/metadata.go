package orientdb

import (
	"context"
	"net/url"
	"strings"
)

// IndexManagerSQL 列出所有索引的查询
const IndexManagerSQL = "select flatten(indexes) from metadata:indexmanager"

// RIDColumn 每个类都有的记录 ID 列
const RIDColumn = "@rid"

// IndexColumns SHOW INDEX 风格的索引行列名
var IndexColumns = []string{
	"Table", "Non_Unique", "Key_name", "Seq_in_index", "Column_Name", "Collation",
	"Cardinality", "Sub_Part", "Packed", "Null", "Index_Type", "Comment",
}

func indexRow(table, keyName, column string, nonUnique int64) []interface{} {
	return []interface{}{table, nonUnique, keyName, int64(1), column, "A", int64(5), nil, nil, "", "BTREE", ""}
}

// listTables GET /database/{db}，每个 classes[] 元素一行
func (c *Connection) listTables(ctx context.Context) (*ResultSet, error) {
	body, err := c.transport.Invoke(ctx, ActionDatabase, "")
	if err != nil {
		return nil, err
	}
	classes, found, err := arrayField(body, "classes")
	if err != nil {
		return nil, err
	}

	b := newRowBuilder("name")
	if !found {
		return b.build(), nil
	}
	err = eachDocument(classes, func(doc *document) error {
		b.add([]string{"name"}, []interface{}{doc.getString("name")})
		return nil
	})
	if err != nil {
		return nil, WrapError(err, ErrCodeProtocol, "failed to decode classes")
	}
	return b.build(), nil
}

// listColumns GET /class/{db}/{table}，properties[] 加上合成的 @rid 行
func (c *Connection) listColumns(ctx context.Context, table string) (*ResultSet, error) {
	body, err := c.transport.Invoke(ctx, ActionClass, "/"+url.PathEscape(table))
	if err != nil {
		return nil, err
	}
	props, found, err := arrayField(body, "properties")
	if err != nil {
		return nil, err
	}

	b := newRowBuilder("name", "type")
	if found {
		err = eachDocument(props, func(doc *document) error {
			b.add(doc.keys, doc.vals)
			return nil
		})
		if err != nil {
			return nil, WrapError(err, ErrCodeProtocol, "failed to decode properties")
		}
	}
	b.add([]string{"name", "type"}, []interface{}{RIDColumn, "integer"})
	return b.build(), nil
}

// listIndexes 合成 @rid 主键行，再从索引管理器中取出属于 table 的索引
func (c *Connection) listIndexes(ctx context.Context, table string) (*ResultSet, error) {
	b := newRowBuilder(IndexColumns...)
	b.add(IndexColumns, indexRow(table, "PRIMARY", RIDColumn, 0))

	body, err := c.transport.Invoke(ctx, ActionQuery, "/sql/"+rawURLEncode(IndexManagerSQL))
	if err != nil {
		return nil, err
	}
	result, found, err := arrayField(body, "result")
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, protocolError(`response has no "result" array`, body)
	}

	err = eachDocument(result, func(doc *document) error {
		owner, field, ok := strings.Cut(doc.getString("name"), ".")
		if !ok || owner == "" || field == "" || owner != table {
			return nil
		}
		var nonUnique int64 = 1
		if doc.getString("type") == "UNIQUE" {
			nonUnique = 0
		}
		b.add(IndexColumns, indexRow(table, field, field, nonUnique))
		return nil
	})
	if err != nil {
		return nil, WrapError(err, ErrCodeProtocol, "failed to decode indexes")
	}
	return b.build(), nil
}
