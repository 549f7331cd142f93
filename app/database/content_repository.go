package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type contentRepository struct {
	db *DB
}

// NewContentRepository creates a new content repository
func NewContentRepository(db *DB) ContentRepository {
	return &contentRepository{db: db}
}

func (r *contentRepository) ContentExists(sourceID int64, externalID string) (bool, error) {
	var one int
	err := r.db.conn().QueryRow(
		"SELECT 1 FROM contents WHERE source_id = ? AND external_id = ?",
		sourceID, externalID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check content existence: %w", err)
	}
	return true, nil
}

func (r *contentRepository) InsertContent(c *Content) (int64, error) {
	tags := c.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return 0, fmt.Errorf("failed to encode tags: %w", err)
	}

	var publishedAt any
	if c.PublishedAt != nil {
		publishedAt = formatTime(*c.PublishedAt)
	}

	result, err := r.db.conn().Exec(`
		INSERT INTO contents (source_id, external_id, title, author, url, tags, file_path, published_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, c.SourceID, c.ExternalID, c.Title, c.Author, c.URL, string(tagsJSON), c.FilePath, publishedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert content: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get inserted content id: %w", err)
	}
	return id, nil
}

func scanContent(scan func(...any) error, joined bool) (*Content, error) {
	var c Content
	var sourceID sql.NullInt64
	var author, url, publishedAt sql.NullString
	var sourceType, sourceName sql.NullString
	var tagsJSON, collectedAt string

	dest := []any{&c.ID, &sourceID, &c.ExternalID, &c.Title, &author, &url,
		&tagsJSON, &c.FilePath, &publishedAt, &collectedAt}
	if joined {
		dest = append(dest, &sourceType, &sourceName)
	}

	if err := scan(dest...); err != nil {
		return nil, err
	}

	// source_id is NULL for content whose source was deleted.
	c.SourceID = sourceID.Int64
	c.SourceType = sourceType.String
	c.SourceName = sourceName.String
	c.Author = author.String
	c.URL = url.String
	c.PublishedAt = scanTime(publishedAt)
	if t, err := parseTime(collectedAt); err == nil {
		c.CollectedAt = t
	}
	if err := json.Unmarshal([]byte(tagsJSON), &c.Tags); err != nil {
		c.Tags = nil
	}

	return &c, nil
}

const contentColumns = "c.id, c.source_id, c.external_id, c.title, c.author, c.url, c.tags, c.file_path, c.published_at, c.collected_at"

func (r *contentRepository) GetContentByID(id int64) (*Content, error) {
	row := r.db.conn().QueryRow(
		"SELECT "+contentColumns+" FROM contents c WHERE c.id = ?", id)

	content, err := scanContent(row.Scan, false)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get content: %w", err)
	}
	return content, nil
}

func (r *contentRepository) DeleteContent(id int64) (bool, error) {
	result, err := r.db.conn().Exec("DELETE FROM contents WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete content: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected > 0, nil
}

func (r *contentRepository) ListContents(filters ContentFilters) ([]Content, int, error) {
	var conditions []string
	var values []any

	if filters.SourceID != nil {
		conditions = append(conditions, "c.source_id = ?")
		values = append(values, *filters.SourceID)
	}
	if filters.SourceType != "" {
		conditions = append(conditions, "s.type = ?")
		values = append(values, filters.SourceType)
	}
	if filters.Author != "" {
		conditions = append(conditions, "c.author = ?")
		values = append(values, filters.Author)
	}
	if filters.Search != "" {
		conditions = append(conditions, "(c.title LIKE ? OR c.author LIKE ?)")
		values = append(values, "%"+filters.Search+"%", "%"+filters.Search+"%")
	}
	if filters.FromDate != "" {
		conditions = append(conditions, "c.published_at >= ?")
		values = append(values, filters.FromDate)
	}
	if filters.ToDate != "" {
		conditions = append(conditions, "c.published_at <= ?")
		values = append(values, filters.ToDate)
	}

	// LEFT JOIN keeps orphaned rows listable after their source is deleted.
	join := " LEFT JOIN sources s ON c.source_id = s.id"
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	err := r.db.conn().QueryRow("SELECT COUNT(*) FROM contents c"+join+where, values...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count contents: %w", err)
	}

	sortCol := "c.collected_at"
	if filters.SortBy == "published_at" {
		sortCol = "c.published_at"
	}

	query := "SELECT " + contentColumns + ", s.type, s.name FROM contents c" + join + where +
		" ORDER BY " + sortCol + " DESC"
	if filters.Limit > 0 {
		query += " LIMIT ?"
		values = append(values, filters.Limit)
		if filters.Offset > 0 {
			query += " OFFSET ?"
			values = append(values, filters.Offset)
		}
	}

	rows, err := r.db.conn().Query(query, values...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list contents: %w", err)
	}
	defer rows.Close()

	var contents []Content
	for rows.Next() {
		content, err := scanContent(rows.Scan, true)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan content row: %w", err)
		}
		contents = append(contents, *content)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating content rows: %w", err)
	}

	return contents, total, nil
}

func (r *contentRepository) ListAuthors(sourceType string) ([]string, error) {
	query := `SELECT DISTINCT c.author FROM contents c
		JOIN sources s ON c.source_id = s.id
		WHERE c.author IS NOT NULL AND c.author != ''`
	var values []any
	if sourceType != "" {
		query += " AND s.type = ?"
		values = append(values, sourceType)
	}
	query += " ORDER BY c.author"

	rows, err := r.db.conn().Query(query, values...)
	if err != nil {
		return nil, fmt.Errorf("failed to list authors: %w", err)
	}
	defer rows.Close()

	var authors []string
	for rows.Next() {
		var author string
		if err := rows.Scan(&author); err != nil {
			return nil, fmt.Errorf("failed to scan author row: %w", err)
		}
		authors = append(authors, author)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating author rows: %w", err)
	}

	return authors, nil
}

func (r *contentRepository) UpdateContentTitle(id int64, title string) error {
	_, err := r.db.conn().Exec("UPDATE contents SET title = ? WHERE id = ?", title, id)
	if err != nil {
		return fmt.Errorf("failed to update content title: %w", err)
	}
	return nil
}

func (r *contentRepository) CountContents() (int, error) {
	var count int
	err := r.db.conn().QueryRow("SELECT COUNT(*) FROM contents").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count contents: %w", err)
	}
	return count, nil
}

func (r *contentRepository) CountContentsSince(t time.Time) (int, error) {
	var count int
	err := r.db.conn().QueryRow(
		"SELECT COUNT(*) FROM contents WHERE collected_at >= ?", formatTime(t)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count recent contents: %w", err)
	}
	return count, nil
}

func (r *contentRepository) CountByPlatform() (map[string]int, error) {
	rows, err := r.db.conn().Query(`
		SELECT s.type, COUNT(*)
		FROM contents c JOIN sources s ON c.source_id = s.id
		GROUP BY s.type
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count contents by platform: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var platform string
		var count int
		if err := rows.Scan(&platform, &count); err != nil {
			return nil, fmt.Errorf("failed to scan platform count row: %w", err)
		}
		counts[platform] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating platform count rows: %w", err)
	}

	return counts, nil
}
