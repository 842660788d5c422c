package kvdb

// Buckets created when the store is opened.
const (
	FilesBucket     = "files"
	RequestsBucket  = "requests"
	ProvidersBucket = "providers"
)

var buckets = []string{FilesBucket, RequestsBucket, ProvidersBucket}

type DB interface {
	Set(bucket string, key string, value string) error
	Get(bucket string, key string) (string, error)
	Delete(bucket string, key string) error
	GetAllKeys(bucket string) ([]string, error)
	Close() error
}
