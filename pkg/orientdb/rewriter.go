package orientdb

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// 改写器只做词法层面的处理，不是 SQL 解析器。
//
// 识别的语法：
//   - 以空白分隔的 token，分隔符原样保留
//   - 语句以 SELECT 开头时才做别名消除和分页改写
//   - 只处理第一个 FROM <table> [AS] <alias>
//
// 已知不支持：多表 / JOIN、子查询、字符串字面量中的 ? 和 alias.、
// LIMIT 0 与非零 OFFSET 同时出现。

var (
	limitZeroRe  = regexp.MustCompile(`\s*\bLIMIT\s+0\b`)
	offsetZeroRe = regexp.MustCompile(`\s*\bOFFSET\s+0\b`)
	offsetRe     = regexp.MustCompile(`\s+OFFSET\s+`)
)

// 出现在表名之后、说明其后没有别名的子句关键字
var clauseKeywords = map[string]bool{
	"WHERE":     true,
	"ORDER":     true,
	"GROUP":     true,
	"HAVING":    true,
	"LIMIT":     true,
	"SKIP":      true,
	"OFFSET":    true,
	"LET":       true,
	"FETCHPLAN": true,
	"TIMEOUT":   true,
	"LOCK":      true,
	"PARALLEL":  true,
	"UNWIND":    true,
	"UNION":     true,
	"JOIN":      true,
	"INNER":     true,
	"LEFT":      true,
	"RIGHT":     true,
	"CROSS":     true,
	"ON":        true,
}

type token struct {
	lead string // token 前的空白
	text string
}

func tokenize(s string) ([]token, string) {
	var toks []token
	i := 0
	for i < len(s) {
		j := skipWhile(s, i, unicode.IsSpace)
		if j == len(s) {
			return toks, s[i:]
		}
		k := skipWhile(s, j, func(r rune) bool { return !unicode.IsSpace(r) })
		toks = append(toks, token{lead: s[i:j], text: s[j:k]})
		i = k
	}
	return toks, ""
}

func skipWhile(s string, i int, pred func(rune) bool) int {
	for i < len(s) {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !pred(r) {
			break
		}
		i += size
	}
	return i
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '@' || c == '$' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') ||
		c >= utf8.RuneSelf
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isIdentByte(s[i]) {
			return false
		}
	}
	return true
}

func isSelect(sql string) bool {
	return strings.HasPrefix(strings.TrimLeftFunc(sql, unicode.IsSpace), "SELECT")
}

// eliminateAlias 去掉 FROM 后的表别名以及 alias. 列限定符
func eliminateAlias(sql string) string {
	toks, tail := tokenize(sql)

	from := -1
	for i, t := range toks {
		if t.text == "FROM" {
			from = i
			break
		}
	}
	if from < 0 || from+2 >= len(toks) {
		return sql
	}

	aliasIdx := from + 2
	asIdx := -1
	if strings.EqualFold(toks[aliasIdx].text, "AS") {
		asIdx = aliasIdx
		aliasIdx++
	}
	if aliasIdx >= len(toks) {
		return sql
	}
	alias := toks[aliasIdx].text
	if clauseKeywords[strings.ToUpper(alias)] || !isIdentifier(alias) {
		return sql
	}

	var b strings.Builder
	b.Grow(len(sql))
	for i, t := range toks {
		if i == aliasIdx || i == asIdx {
			continue
		}
		b.WriteString(t.lead)
		b.WriteString(t.text)
	}
	b.WriteString(tail)

	return stripQualifier(b.String(), alias+".")
}

// stripQualifier 删除位于标识符边界上的 prefix
func stripQualifier(s, prefix string) string {
	var b strings.Builder
	b.Grow(len(s))
	i := 0
	for {
		j := strings.Index(s[i:], prefix)
		if j < 0 {
			b.WriteString(s[i:])
			return b.String()
		}
		j += i
		b.WriteString(s[i:j])
		if j > 0 && isIdentByte(s[j-1]) {
			b.WriteString(prefix)
		}
		i = j + len(prefix)
	}
}

// translatePagination LIMIT 0 / OFFSET 0 删除，OFFSET n 改为 ,n
func translatePagination(sql string) string {
	sql = limitZeroRe.ReplaceAllString(sql, "")
	sql = offsetZeroRe.ReplaceAllString(sql, "")
	return offsetRe.ReplaceAllString(sql, ",")
}

// substituteParams 把 ? 依次替换为参数字面量
func substituteParams(sql string, params []boundParam) (string, error) {
	if len(params) == 0 {
		return strings.TrimSpace(sql), nil
	}

	parts := strings.Split(sql, "?")
	if len(parts)-1 != len(params) {
		return "", NewError(ErrCodeBinding,
			fmt.Sprintf("placeholder count mismatch: %d placeholders, %d parameters", len(parts)-1, len(params)), nil)
	}

	var b strings.Builder
	b.Grow(len(sql) + 16*len(params))
	for k, part := range parts {
		b.WriteString(part)
		if k == len(params) {
			break
		}
		lit, err := formatLiteral(params[k], k+1)
		if err != nil {
			return "", err
		}
		b.WriteString(lit)
	}
	return strings.TrimSpace(b.String()), nil
}

// formatLiteral 按类型标记把参数格式化为 SQL 字面量
func formatLiteral(p boundParam, pos int) (string, error) {
	if p.typ == ParamNull || p.value.IsNull() {
		return "NULL", nil
	}

	switch p.typ {
	case ParamInteger:
		text := strings.TrimSpace(p.value.Text())
		if !isIntegerText(text) {
			return "", NewError(ErrCodeBinding, fmt.Sprintf("parameter %d is bound as integer but %q is not an integer", pos, text), nil)
		}
		return text, nil
	case ParamBoolean:
		if p.value.truthy() {
			return "true", nil
		}
		return "false", nil
	case ParamString, ParamLOB:
		return QuoteLiteral(p.value.Text()), nil
	default:
		return "", bindingError("parameter %d has unknown type %s", pos, p.typ)
	}
}

// isIntegerText 可选符号加十进制数字
func isIntegerText(s string) bool {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "-"), "+")
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// QuoteLiteral 反斜杠加倍，再把单引号加倍，最后用单引号包裹
func QuoteLiteral(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `''`)
	return "'" + s + "'"
}

// rewrite 完整改写流程：别名消除 -> 分页 -> 参数替换
func rewrite(sql string, params []boundParam) (string, error) {
	if isSelect(sql) {
		sql = eliminateAlias(sql)
		sql = translatePagination(sql)
	}
	return substituteParams(sql, params)
}

// RewriteSQL 按 OrientDB 方言改写 SQL，args 的类型按 InferValue 推断
func RewriteSQL(sql string, args ...interface{}) (string, error) {
	params := make([]boundParam, len(args))
	for i, a := range args {
		v, typ := InferValue(a)
		params[i] = boundParam{typ: typ, value: v}
	}
	return rewrite(sql, params)
}

// projectedColumns 取 SELECT 列表中每一项的最后一个单词作为列名
func projectedColumns(sql string) []string {
	if !isSelect(sql) {
		return nil
	}
	head, _, found := strings.Cut(sql, " FROM ")
	if !found {
		return nil
	}

	var cols []string
	for _, item := range strings.Split(head, ",") {
		fields := strings.Fields(item)
		if len(fields) == 0 {
			continue
		}
		name := strings.Trim(fields[len(fields)-1], "`")
		if name == "" || name == "SELECT" || strings.ContainsAny(name, "*()") {
			continue
		}
		cols = append(cols, name)
	}
	return cols
}
