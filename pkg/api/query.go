package api

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/skarvik/accountd/pkg/api/store"
)

// parseIDParam extracts the {id} route parameter.
func parseIDParam(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "id")

	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, clientErr(errBadRequest, "invalid id %q", raw)
	}

	return id, nil
}

func intQuery(q url.Values, name string) (*int, error) {
	raw := q.Get(name)
	if raw == "" {
		return nil, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, clientErr(errBadRequest, "invalid %s %q", name, raw)
	}

	return &v, nil
}

func boolQuery(q url.Values, name string) (*bool, error) {
	raw := q.Get(name)
	if raw == "" {
		return nil, nil
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, clientErr(errBadRequest, "invalid %s %q", name, raw)
	}

	return &v, nil
}

func timeQuery(q url.Values, name string) (*time.Time, error) {
	raw := q.Get(name)
	if raw == "" {
		return nil, nil
	}

	v, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, clientErr(
			errBadRequest, "invalid %s %q, want RFC 3339", name, raw,
		)
	}

	return &v, nil
}

func orderQuery(q url.Values, orders map[string]string) (string, error) {
	raw := q.Get("order_by")

	if _, ok := orders[raw]; !ok {
		return "", clientErr(errBadRequest, "invalid order_by %q", raw)
	}

	return raw, nil
}

// parseUserFilter builds a user listing filter from query parameters.
func parseUserFilter(r *http.Request) (store.UserFilter, error) {
	var (
		filter store.UserFilter
		err    error
		q      = r.URL.Query()
	)

	if filter.IDLte, err = intQuery(q, "id_lte"); err != nil {
		return filter, err
	}

	if filter.IDMte, err = intQuery(q, "id_mte"); err != nil {
		return filter, err
	}

	if raw := q.Get("username_contains"); raw != "" {
		filter.UsernameContains = &raw
	}

	if filter.AdminEq, err = boolQuery(q, "admin_eq"); err != nil {
		return filter, err
	}

	if filter.LockedEq, err = boolQuery(q, "locked_eq"); err != nil {
		return filter, err
	}

	if filter.Limit, err = intQuery(q, "limit"); err != nil {
		return filter, err
	}

	if filter.OrderBy, err = orderQuery(q, store.UserOrders); err != nil {
		return filter, err
	}

	return filter, nil
}

// parseSessionFilter builds a session listing filter from query
// parameters. Ownership scoping is the caller's responsibility.
func parseSessionFilter(r *http.Request) (store.SessionFilter, error) {
	var (
		filter store.SessionFilter
		err    error
		q      = r.URL.Query()
	)

	if filter.IDLte, err = intQuery(q, "id_lte"); err != nil {
		return filter, err
	}

	if filter.IDMte, err = intQuery(q, "id_mte"); err != nil {
		return filter, err
	}

	if filter.UserIDEq, err = intQuery(q, "userid_eq"); err != nil {
		return filter, err
	}

	if filter.UntilLte, err = timeQuery(q, "until_lte"); err != nil {
		return filter, err
	}

	if filter.UntilMte, err = timeQuery(q, "until_mte"); err != nil {
		return filter, err
	}

	if filter.Limit, err = intQuery(q, "limit"); err != nil {
		return filter, err
	}

	if filter.OrderBy, err = orderQuery(q, store.SessionOrders); err != nil {
		return filter, err
	}

	return filter, nil
}
