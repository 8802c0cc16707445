package rules

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	customerdomain "github.com/apipatb/earning-sub011/internal/customer/domain"
	customerrepo "github.com/apipatb/earning-sub011/internal/customer/repository"
	"github.com/apipatb/earning-sub011/internal/segment/domain"
	"github.com/apipatb/earning-sub011/pkg/db"
	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db    *gorm.DB
	node  *snowflake.Node
	orgID snowflake.ID
	repo  customerdomain.Repository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&customerdomain.Customer{}, &customerdomain.Ticket{}, &customerdomain.Invoice{}))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return &fixture{db: conn, node: node, orgID: node.Generate(), repo: customerrepo.Provide()}
}

func (f *fixture) add(t *testing.T, c customerdomain.Customer) snowflake.ID {
	t.Helper()
	c.ID = f.node.Generate()
	if c.OrgID == 0 {
		c.OrgID = f.orgID
	}
	if c.Email == "" {
		c.Email = c.ID.String() + "@example.com"
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = testNow.AddDate(0, -6, 0)
	}
	c.UpdatedAt = c.CreatedAt
	c.IsActive = true
	require.NoError(t, f.repo.Insert(context.Background(), f.db, &c))
	return c.ID
}

func (f *fixture) match(t *testing.T, mode domain.Mode, rules ...domain.Rule) []snowflake.ID {
	t.Helper()
	scope, err := Scope(mode, rules, testNow)
	require.NoError(t, err)
	ids, err := f.repo.ListIDs(context.Background(), f.db, f.orgID, scope)
	require.NoError(t, err)
	return ids
}

func TestBetweenIsInclusive(t *testing.T) {
	f := newFixture(t)
	byCount := map[int64]snowflake.ID{}
	for _, n := range []int64{9, 10, 15, 20, 21} {
		byCount[n] = f.add(t, customerdomain.Customer{Name: "c", PurchaseCount: n})
	}

	got := f.match(t, domain.ModeAnd, domain.NewRule("purchaseCount", domain.OperatorBetween, []int{10, 20}))

	assert.ElementsMatch(t, []snowflake.ID{byCount[10], byCount[15], byCount[20]}, got)
}

func TestContainsIsCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	acme := f.add(t, customerdomain.Customer{Name: "Acme Corp"})
	f.add(t, customerdomain.Customer{Name: "Beta Ltd"})

	got := f.match(t, domain.ModeAnd, domain.NewRule("name", domain.OperatorContains, "CO"))

	assert.Equal(t, []snowflake.ID{acme}, got)
}

func TestContainsMatchesWildcardsLiterally(t *testing.T) {
	f := newFixture(t)
	f.add(t, customerdomain.Customer{Name: "Acme Corp"})
	f.add(t, customerdomain.Customer{Name: "Globex"})
	sale := f.add(t, customerdomain.Customer{Name: "Sale 50% off"})

	assert.Equal(t, []snowflake.ID{sale}, f.match(t, domain.ModeAnd, domain.NewRule("name", domain.OperatorContains, "%")))
	assert.Empty(t, f.match(t, domain.ModeAnd, domain.NewRule("name", domain.OperatorContains, "_")))
	assert.Equal(t, []snowflake.ID{sale}, f.match(t, domain.ModeAnd, domain.NewRule("name", domain.OperatorContains, "50% OFF")))
}

func TestComparisonOperators(t *testing.T) {
	f := newFixture(t)
	low := f.add(t, customerdomain.Customer{Name: "low", TotalPurchases: 100})
	mid := f.add(t, customerdomain.Customer{Name: "mid", TotalPurchases: 1000})
	high := f.add(t, customerdomain.Customer{Name: "high", TotalPurchases: 5000})

	cases := []struct {
		op   domain.Operator
		want []snowflake.ID
	}{
		{domain.OperatorEq, []snowflake.ID{mid}},
		{domain.OperatorNeq, []snowflake.ID{low, high}},
		{domain.OperatorGt, []snowflake.ID{high}},
		{domain.OperatorGte, []snowflake.ID{mid, high}},
		{domain.OperatorLt, []snowflake.ID{low}},
		{domain.OperatorLte, []snowflake.ID{low, mid}},
	}
	for _, tc := range cases {
		t.Run(string(tc.op), func(t *testing.T) {
			got := f.match(t, domain.ModeAnd, domain.NewRule("totalPurchases", tc.op, 1000))
			assert.ElementsMatch(t, tc.want, got)
		})
	}
}

func TestInAndModes(t *testing.T) {
	f := newFixture(t)
	th := f.add(t, customerdomain.Customer{Name: "a", Country: "TH", City: "Bangkok", TotalPurchases: 10})
	us := f.add(t, customerdomain.Customer{Name: "b", Country: "US", City: "Austin", TotalPurchases: 2000})
	f.add(t, customerdomain.Customer{Name: "c", Country: "JP", City: "Osaka", TotalPurchases: 50})

	got := f.match(t, domain.ModeAnd, domain.NewRule("country", domain.OperatorIn, []string{"TH", "US"}))
	assert.ElementsMatch(t, []snowflake.ID{th, us}, got)

	got = f.match(t, domain.ModeAnd,
		domain.NewRule("country", domain.OperatorIn, []string{"TH", "US"}),
		domain.NewRule("totalPurchases", domain.OperatorGte, 1000),
	)
	assert.Equal(t, []snowflake.ID{us}, got)

	got = f.match(t, domain.ModeOr,
		domain.NewRule("city", domain.OperatorEq, "Bangkok"),
		domain.NewRule("totalPurchases", domain.OperatorGte, 1000),
	)
	assert.ElementsMatch(t, []snowflake.ID{th, us}, got)
}

func TestOrGroupStaysScopedToOrganization(t *testing.T) {
	f := newFixture(t)
	mine := f.add(t, customerdomain.Customer{Name: "mine", City: "Bangkok"})
	f.add(t, customerdomain.Customer{Name: "theirs", City: "Bangkok", OrgID: f.node.Generate()})

	got := f.match(t, domain.ModeOr,
		domain.NewRule("city", domain.OperatorEq, "Bangkok"),
		domain.NewRule("name", domain.OperatorEq, "theirs"),
	)
	assert.Equal(t, []snowflake.ID{mine}, got)
}

func TestRelativeDates(t *testing.T) {
	f := newFixture(t)
	recent := testNow.AddDate(0, 0, -5)
	stale := testNow.AddDate(0, 0, -120)
	active := f.add(t, customerdomain.Customer{Name: "active", PurchaseCount: 1, LastPurchaseAt: &recent})
	lapsed := f.add(t, customerdomain.Customer{Name: "lapsed", PurchaseCount: 1, LastPurchaseAt: &stale})
	f.add(t, customerdomain.Customer{Name: "never"})

	got := f.match(t, domain.ModeAnd, domain.NewRule("lastPurchaseDate", domain.OperatorGte, map[string]int{"daysAgo": 30}))
	assert.Equal(t, []snowflake.ID{active}, got)

	got = f.match(t, domain.ModeAnd, domain.NewRule("lastPurchaseDate", domain.OperatorLt, map[string]int{"daysAgo": 90}))
	assert.Equal(t, []snowflake.ID{lapsed}, got)
}

func TestRejectsMalformedRules(t *testing.T) {
	cases := []struct {
		name string
		rule domain.Rule
		want error
	}{
		{"unknown operator", domain.NewRule("name", "like", "x"), domain.ErrInvalidRuleOperator},
		{"unknown field", domain.NewRule("password", domain.OperatorEq, "x"), domain.ErrInvalidRuleField},
		{"non numeric value", domain.NewRule("totalPurchases", domain.OperatorGt, "lots"), domain.ErrInvalidRuleValue},
		{"between arity", domain.NewRule("totalPurchases", domain.OperatorBetween, []int{1}), domain.ErrInvalidRuleValue},
		{"empty in", domain.NewRule("country", domain.OperatorIn, []string{}), domain.ErrInvalidRuleValue},
		{"contains on number", domain.NewRule("purchaseCount", domain.OperatorContains, "1"), domain.ErrInvalidRuleOperator},
		{"bad date", domain.NewRule("createdAt", domain.OperatorGt, "yesterday"), domain.ErrInvalidRuleValue},
		{"missing value", domain.Rule{Field: "name", Operator: domain.OperatorEq}, domain.ErrInvalidRuleValue},
		{"null number", domain.Rule{Field: "totalPurchases", Operator: domain.OperatorGte, Value: json.RawMessage("null")}, domain.ErrInvalidRuleValue},
		{"null text", domain.Rule{Field: "name", Operator: domain.OperatorEq, Value: json.RawMessage(" null ")}, domain.ErrInvalidRuleValue},
		{"null date", domain.Rule{Field: "createdAt", Operator: domain.OperatorLt, Value: json.RawMessage("null")}, domain.ErrInvalidRuleValue},
		{"null contains", domain.Rule{Field: "city", Operator: domain.OperatorContains, Value: json.RawMessage("null")}, domain.ErrInvalidRuleValue},
		{"null in", domain.Rule{Field: "country", Operator: domain.OperatorIn, Value: json.RawMessage("null")}, domain.ErrInvalidRuleValue},
		{"null inside in", domain.Rule{Field: "country", Operator: domain.OperatorIn, Value: json.RawMessage(`["TH", null]`)}, domain.ErrInvalidRuleValue},
		{"bool number", domain.NewRule("purchaseCount", domain.OperatorEq, true), domain.ErrInvalidRuleValue},
		{"number for text", domain.NewRule("name", domain.OperatorEq, 42), domain.ErrInvalidRuleValue},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, Validate([]domain.Rule{tc.rule}), tc.want)
		})
	}

	_, err := Scope("XOR", []domain.Rule{domain.NewRule("name", domain.OperatorEq, "x")}, testNow)
	assert.ErrorIs(t, err, domain.ErrInvalidRuleMode)
}

func TestParseDateFormats(t *testing.T) {
	day, err := parseDate([]byte(`"2024-03-05"`), testNow)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), day)

	stamp, err := parseDate([]byte(`"2024-03-05T10:00:00+07:00"`), testNow)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 5, 3, 0, 0, 0, time.UTC), stamp)

	rel, err := parseDate([]byte(`{"daysAgo": 7}`), testNow)
	require.NoError(t, err)
	assert.Equal(t, testNow.AddDate(0, 0, -7), rel)

	_, err = parseDate([]byte(`{"daysAgo": -1}`), testNow)
	assert.ErrorIs(t, err, domain.ErrInvalidRuleValue)
}
