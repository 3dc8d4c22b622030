package dialect

// The built-in dialects.  Grounded in the engines Malloy models target;
// adding one is a matter of registering another implementation.

type standardSQL struct{}

func (standardSQL) Name() string                { return "standardsql" }
func (standardSQL) SupportsLike() bool          { return true }
func (standardSQL) SupportsSafeCast() bool      { return true }
func (standardSQL) DivFunction() string         { return "SAFE_DIVIDE" }
func (standardSQL) RegexpMatchFunction() string { return "REGEXP_CONTAINS" }

type postgres struct{}

func (postgres) Name() string                { return "postgres" }
func (postgres) SupportsLike() bool          { return true }
func (postgres) SupportsSafeCast() bool      { return false }
func (postgres) DivFunction() string         { return "NULLIF" }
func (postgres) RegexpMatchFunction() string { return "~" }

type duckdb struct{}

func (duckdb) Name() string                { return "duckdb" }
func (duckdb) SupportsLike() bool          { return true }
func (duckdb) SupportsSafeCast() bool      { return true }
func (duckdb) DivFunction() string         { return "NULLIF" }
func (duckdb) RegexpMatchFunction() string { return "REGEXP_MATCHES" }

func init() {
	Register(standardSQL{})
	Register(postgres{})
	Register(duckdb{})
}
