// Package orientdb 通过 OrientDB 的 REST+JSON 命令接口执行 SQL。
//
// 调用方按普通关系型数据库的方式使用：
//
//	conn, err := orientdb.Open(ctx, orientdb.Config{Database: "demo", User: "root", Password: "pw"})
//	stmt, err := conn.Prepare("SELECT name FROM Users u WHERE u.id = ?")
//	err = stmt.Execute(ctx, 5)
//	for _, rec := range stmt.All() { ... }
//
// 执行前 SQL 会被改写为 OrientDB 方言（去掉表别名、改写 OFFSET、内联参数），
// 再根据首个关键字选择接口：
//
//	create/alter/drop          POST /batch/{db}，响应只校验是否为 JSON
//	INSERT/UPDATE/DELETE       POST /batch/{db}，响应必须是数字（影响行数，同时记为 LastInsertID）
//	其他                       GET  /query/{db}/sql/{sql}[/{limit}]
//
// 四个元数据哨兵（getListTablesSQL、getListTableColumnsSQL、getListTableIndexesSQL、
// getListTableForeignKeysSQL）走专门的元数据接口，可以用 table~sentinel 形式附带表名。
//
// 事务调用总是成功但不提供任何隔离或原子性。
package orientdb
