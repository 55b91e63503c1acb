package albums

import (
	"strings"
	"time"
)

// albumFrom is the FROM clause of the id pass. The owner join is
// many-to-one, so it never multiplies album rows.
const albumFrom = `FROM albums a LEFT JOIN users u ON u.id = a.user_id`

// blankEvent is true for a NULL, empty or whitespace-only event.
const blankEvent = `(a.event IS NULL OR a.event REGEXP '^[[:space:]]*$')`

// likeEscaper escapes LIKE wildcards so criteria match literally. MariaDB's
// default LIKE escape character is the backslash.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern returns a LIKE pattern matching s anywhere, lower-cased to
// pair with LOWER(column).
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
}

// buildWhere composes the present criteria into one AND-ed predicate.
// Absent criteria contribute nothing. The tag criterion is an EXISTS
// subquery so the id pass stays at one row per album.
func buildWhere(c Criteria) (string, []any) {
	var clauses []string
	var args []any

	if c.Keyword != "" {
		p := containsPattern(c.Keyword)
		clauses = append(clauses,
			`(LOWER(a.name) LIKE ? OR LOWER(a.keywords) LIKE ? OR LOWER(a.description) LIKE ?)`)
		args = append(args, p, p, p)
	}
	if c.Event != "" {
		clauses = append(clauses, `LOWER(a.event) LIKE ?`)
		args = append(args, containsPattern(c.Event))
	}
	if c.Year != nil {
		// A half-open UTC range keeps the creation_date index usable.
		from := time.Date(*c.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
		clauses = append(clauses, `a.creation_date >= ? AND a.creation_date < ?`)
		args = append(args, from, from.AddDate(1, 0, 0))
	}
	if c.TagName != "" {
		clauses = append(clauses, `EXISTS (SELECT 1 FROM album_tags ft
	           INNER JOIN tags ftg ON ftg.id = ft.tag_id
	           WHERE ft.album_id = a.id AND LOWER(ftg.name) LIKE ?)`)
		args = append(args, containsPattern(c.TagName))
	}
	if c.ContributorLogin != "" {
		clauses = append(clauses, `LOWER(u.login) LIKE ?`)
		args = append(args, containsPattern(c.ContributorLogin))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

// fieldColumns maps sortable fields to their column expressions. String
// columns compare in binary collation to match Go's byte-wise ordering.
var fieldColumns = map[string]string{
	FieldID:           "a.id",
	FieldName:         "a.name COLLATE utf8mb4_bin",
	FieldEvent:        "a.event COLLATE utf8mb4_bin",
	FieldCreationDate: "a.creation_date",
	FieldOverrideDate: "a.override_date",
}

// buildOrderBy returns the ORDER BY clause for a query. Every form ends in
// an id tie-break so the order is total.
func buildOrderBy(sortBy SortBy, fs *FieldSort) string {
	if fs != nil {
		dir := "ASC"
		if fs.Desc {
			dir = "DESC"
		}
		return "ORDER BY " + fieldColumns[fs.Field] + " " + dir + ", a.id ASC"
	}

	if sortBy == SortByDate {
		return `ORDER BY COALESCE(a.override_date, a.creation_date) DESC, a.creation_date DESC, a.id DESC`
	}

	return `ORDER BY CASE WHEN ` + blankEvent + ` THEN 0 ELSE 1 END,
	           CASE WHEN ` + blankEvent + ` THEN NULL ELSE a.event END COLLATE utf8mb4_bin,
	           a.name COLLATE utf8mb4_bin, a.id ASC`
}
