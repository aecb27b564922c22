package schema

// Collection names.
const (
	Accounts     = "accounts"
	Payments     = "payments"
	Challenges   = "challenges"
	Grants       = "grants"
	Institutions = "institutions"
)

// Field names shared across collections.
const (
	FieldUserID         = "user_id"
	FieldUsername       = "username"
	FieldEmail          = "email"
	FieldCustomerID     = "customer_id"
	FieldInstitutionID  = "institution_id"
	FieldPasswordDigest = "password_digest"
	FieldPasswordSalt   = "password_salt"
	FieldKind           = "kind"
	FieldCourseProgress = "course_progress"
	FieldSubscriptionID = "subscription_id"
	FieldPaidCourses    = "paid_courses"
	FieldCode           = "code"
	FieldIssuedAt       = "issued_at"
	FieldAttempts       = "attempts"
	FieldTokenID        = "token_id"
	FieldCreatedAt      = "created_at"
	FieldAdminID        = "admin_id"
	FieldJoinCode       = "join_code"
	FieldName           = "name"
	FieldMembers        = "members"
)

// Default returns the schema of the platform's collections. It panics if the
// declarations are inconsistent, which can only happen after a bad edit here.
func Default() *Schema {
	s, err := New(
		Collection{Name: Accounts, Fields: []Field{
			{Name: FieldUserID, Encoding: UTF8, Class: Indexed, Unique: true},
			{Name: FieldUsername, Encoding: UTF8, Class: Indexed, Unique: true},
			{Name: FieldEmail, Encoding: UTF8, Class: Indexed, Unique: true},
			{Name: FieldCustomerID, Encoding: UTF8, Class: Indexed, Unique: true},
			{Name: FieldInstitutionID, Encoding: UTF8, Class: Indexed},
			{Name: FieldPasswordDigest, Encoding: Base64, Class: Encrypted},
			{Name: FieldPasswordSalt, Encoding: Base64, Class: Encrypted},
			{Name: FieldKind, Encoding: UTF8, Class: Encrypted},
			{Name: FieldCourseProgress, Encoding: Object, Class: Opaque},
		}},
		Collection{Name: Payments, Fields: []Field{
			{Name: FieldUserID, Encoding: UTF8, Class: Indexed, Unique: true},
			{Name: FieldCustomerID, Encoding: UTF8, Class: Indexed, Unique: true},
			{Name: FieldInstitutionID, Encoding: UTF8, Class: Indexed},
			{Name: FieldSubscriptionID, Encoding: UTF8, Class: Encrypted},
			{Name: FieldPaidCourses, Encoding: Object, Class: Opaque},
		}},
		Collection{Name: Challenges, Fields: []Field{
			{Name: FieldUserID, Encoding: UTF8, Class: Indexed, Unique: true},
			{Name: FieldCode, Encoding: UTF8, Class: Encrypted},
			{Name: FieldIssuedAt, Encoding: Object, Class: Opaque},
			{Name: FieldAttempts, Encoding: Object, Class: Opaque},
		}},
		Collection{Name: Grants, Fields: []Field{
			{Name: FieldTokenID, Encoding: UTF8, Class: Indexed, Unique: true},
			{Name: FieldUserID, Encoding: UTF8, Class: Indexed},
			{Name: FieldCreatedAt, Encoding: Object, Class: Opaque},
		}},
		Collection{Name: Institutions, Fields: []Field{
			{Name: FieldInstitutionID, Encoding: UTF8, Class: Indexed, Unique: true},
			{Name: FieldAdminID, Encoding: UTF8, Class: Indexed, Unique: true},
			{Name: FieldJoinCode, Encoding: UTF8, Class: Indexed, Unique: true},
			{Name: FieldName, Encoding: UTF8, Class: Encrypted},
			{Name: FieldSubscriptionID, Encoding: UTF8, Class: Encrypted},
			{Name: FieldMembers, Encoding: Object, Class: Opaque},
		}},
	)
	if err != nil {
		panic(err)
	}
	return s
}
