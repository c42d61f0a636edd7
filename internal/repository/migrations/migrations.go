// Package migrations holds the archive schema for each supported store.
package migrations

import (
	"fmt"
)

var PostgresSchema = `
CREATE TABLE IF NOT EXISTS archived_request (
    id UUID PRIMARY KEY,
    request_id TEXT NOT NULL,
    method VARCHAR(16) NOT NULL,
    url TEXT NOT NULL,
    host TEXT,
    timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
    archived_at TIMESTAMP WITH TIME ZONE NOT NULL,
    headers JSONB,
    body JSONB
);

CREATE INDEX IF NOT EXISTS idx_archived_request_request_id ON archived_request(request_id);
CREATE INDEX IF NOT EXISTS idx_archived_request_host ON archived_request(host);
CREATE INDEX IF NOT EXISTS idx_archived_request_timestamp ON archived_request(timestamp);
`

var SQLiteSchema = `
CREATE TABLE IF NOT EXISTS archived_request (
    id TEXT PRIMARY KEY,
    request_id TEXT NOT NULL,
    method TEXT NOT NULL,
    url TEXT NOT NULL,
    host TEXT,
    timestamp INTEGER NOT NULL,
    archived_at INTEGER NOT NULL,
    headers TEXT,
    body TEXT
);

CREATE INDEX IF NOT EXISTS idx_archived_request_request_id ON archived_request(request_id);
CREATE INDEX IF NOT EXISTS idx_archived_request_timestamp ON archived_request(timestamp);
`

// OracleStatements run one by one; ORA-00955 (name already used) means the
// object exists.
var OracleStatements = []string{
	`CREATE TABLE archived_request (
        id VARCHAR2(36) PRIMARY KEY,
        request_id VARCHAR2(128) NOT NULL,
        method VARCHAR2(16) NOT NULL,
        url CLOB NOT NULL,
        host VARCHAR2(255),
        timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
        archived_at TIMESTAMP WITH TIME ZONE NOT NULL,
        headers CLOB,
        body CLOB
    )`,
	`CREATE INDEX idx_archived_request_request_id ON archived_request(request_id)`,
	`CREATE INDEX idx_archived_request_timestamp ON archived_request(timestamp)`,
}

const OracleAlreadyExists = "ORA-00955"

func GetCouchbaseIndexes(bucketName string) []string {
	return []string{
		fmt.Sprintf("CREATE PRIMARY INDEX ON `%s`", bucketName),
		fmt.Sprintf("CREATE INDEX idx_archived_request_request_id ON `%s`(request_id)", bucketName),
		fmt.Sprintf("CREATE INDEX idx_archived_request_host ON `%s`(host)", bucketName),
		fmt.Sprintf("CREATE INDEX idx_archived_request_timestamp ON `%s`(timestamp)", bucketName),
	}
}

// MongoIndexKeys lists the single-field indexes of the archive collection.
var MongoIndexKeys = []string{"request_id", "host", "timestamp"}
