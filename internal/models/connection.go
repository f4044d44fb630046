package models

// Schema names a logical database schema hosted by the store
type Schema string

const (
	// SchemaMain holds the analyses, the fields catalog and the variant tables
	SchemaMain Schema = "main"
	// SchemaUsers holds user-owned data such as value lists
	SchemaUsers Schema = "users"
)

// Parameters describes how to reach the store. The engine treats it as
// opaque; config fills it from the configuration document.
type Parameters struct {
	Driver      string            `mapstructure:"driver" yaml:"driver"`
	Host        string            `mapstructure:"host" yaml:"host"`
	Port        int               `mapstructure:"port" yaml:"port"`
	User        string            `mapstructure:"user" yaml:"user"`
	Password    string            `mapstructure:"password" yaml:"-"`
	SSLMode     string            `mapstructure:"ssl_mode" yaml:"ssl_mode"`
	Compression bool              `mapstructure:"compression" yaml:"compression"`
	MaxConns    int32             `mapstructure:"max_conns" yaml:"max_conns"`
	Schemas     map[string]string `mapstructure:"schemas" yaml:"schemas"`
}

// Database returns the database name configured for a logical schema. An
// unset schema falls back to the main one.
func (p Parameters) Database(s Schema) string {
	if name, ok := p.Schemas[string(s)]; ok && name != "" {
		return name
	}
	return p.Schemas[string(SchemaMain)]
}
