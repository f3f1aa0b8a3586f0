package kernel

// OrgID identifies an owning organization (tenant).
type OrgID string

func NewOrgID(id string) OrgID { return OrgID(id) }
func (o OrgID) String() string { return string(o) }
func (o OrgID) IsEmpty() bool  { return string(o) == "" }

// UserID identifies a user within an organization.
type UserID string

func NewUserID(id string) UserID { return UserID(id) }
func (u UserID) String() string  { return string(u) }
func (u UserID) IsEmpty() bool   { return string(u) == "" }

// KeyID identifies an API credential.
type KeyID string

func NewKeyID(id string) KeyID { return KeyID(id) }
func (k KeyID) String() string { return string(k) }
func (k KeyID) IsEmpty() bool  { return string(k) == "" }

// SubscriptionID identifies a locally-held subscription record.
type SubscriptionID string

func NewSubscriptionID(id string) SubscriptionID { return SubscriptionID(id) }
func (s SubscriptionID) String() string          { return string(s) }
func (s SubscriptionID) IsEmpty() bool           { return string(s) == "" }
