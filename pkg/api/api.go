// Package api implements the REST API for compiling and evaluating condition
// expressions and for managing stored rules.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/lemonberrylabs/condeval/pkg/expr"
	"github.com/lemonberrylabs/condeval/pkg/rules"
	"github.com/lemonberrylabs/condeval/pkg/store"
	"github.com/lemonberrylabs/condeval/pkg/types"
)

// Server is the API server.
type Server struct {
	app    *fiber.App
	store  *store.Store
	logger *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a new API server.
func New(s *store.Store, opts ...Option) *Server {
	srv := &Server{
		store:  s,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(srv)
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
	})

	// Ad-hoc expressions
	app.Post("/v1/expressions\\:evaluate", srv.evaluateExpression)

	// Rules API
	app.Post("/v1/rules", srv.createRule)
	app.Get("/v1/rules", srv.listRules)
	app.Get("/v1/rules/:rule", srv.getRule)
	app.Patch("/v1/rules/:rule", srv.updateRule)
	app.Delete("/v1/rules/:rule", srv.deleteRule)

	// Evaluations API
	app.Post("/v1/rules/:rule/evaluations", srv.createEvaluation)
	app.Get("/v1/rules/:rule/evaluations", srv.listEvaluations)
	app.Get("/v1/evaluations/:evaluation", srv.getEvaluation)

	srv.app = app
	return srv
}

// Listen starts the HTTP server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

// --- Expression Handlers ---

const (
	modeBoolean = "boolean"
	modeNumber  = "number"
)

func (s *Server) evaluateExpression(c *fiber.Ctx) error {
	body, err := decodeBody(c)
	if err != nil {
		return errorResponse(c, 400, "INVALID_ARGUMENT", fmt.Sprintf("invalid request body: %v", err))
	}

	source := body.GetFields()["expression"].GetStringValue()
	if source == "" {
		return errorResponse(c, 400, "INVALID_ARGUMENT", "expression is required")
	}
	mode := body.GetFields()["mode"].GetStringValue()
	if mode == "" {
		mode = modeBoolean
	}
	if mode != modeBoolean && mode != modeNumber {
		return errorResponse(c, 400, "INVALID_ARGUMENT", fmt.Sprintf("mode must be %q or %q, got %q", modeBoolean, modeNumber, mode))
	}
	lenient := body.GetFields()["lenient"].GetBoolValue()

	vars, err := variables(body)
	if err != nil {
		return errorResponse(c, 400, "INVALID_ARGUMENT", err.Error())
	}

	opts := append(s.store.ExprOptions(), expr.WithLogger(s.logger))
	e, err := expr.Compile(source, opts...)
	if err != nil {
		return errorResponse(c, 400, "INVALID_ARGUMENT", err.Error())
	}

	callVars := make(map[string]interface{}, len(vars))
	for k, v := range vars {
		callVars[k] = v
	}

	var result types.Value
	switch {
	case mode == modeNumber && lenient:
		result = types.NewDouble(e.EvaluateOrZero(callVars))
	case mode == modeNumber:
		f, err := e.Evaluate(callVars)
		if err != nil {
			return evaluationError(c, err)
		}
		result = types.NewDouble(f)
	case lenient:
		result = types.NewBool(e.EvaluateBooleanOrFalse(callVars))
	default:
		b, err := e.EvaluateBoolean(callVars)
		if err != nil {
			return evaluationError(c, err)
		}
		result = types.NewBool(b)
	}

	return c.JSON(fiber.Map{
		"expression": source,
		"parsed":     e.Root().String(),
		"mode":       mode,
		"result":     jsonValue(result),
	})
}

// --- Rule Handlers ---

func (s *Server) createRule(c *fiber.Ctx) error {
	var def rules.Definition
	if err := c.BodyParser(&def); err != nil {
		return errorResponse(c, 400, "INVALID_ARGUMENT", fmt.Sprintf("invalid request body: %v", err))
	}
	if id := c.Query("ruleId"); id != "" {
		def.Name = id
	}

	r, err := s.store.CreateRule(def, "api")
	if err != nil {
		return storeError(c, err)
	}
	s.logger.Info("rule created", "rule", r.Name, "revision", r.RevisionID)
	return c.Status(200).JSON(ruleToJSON(r))
}

func (s *Server) getRule(c *fiber.Ctx) error {
	r, err := s.store.GetRule(c.Params("rule"))
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(ruleToJSON(r))
}

func (s *Server) listRules(c *fiber.Ctx) error {
	list := s.store.ListRules()

	items := make([]fiber.Map, len(list))
	for i, r := range list {
		items[i] = ruleToJSON(r)
	}

	return c.JSON(fiber.Map{
		"rules": items,
	})
}

type updateRuleRequest struct {
	Expression  *string     `json:"expression"`
	Type        *rules.Type `json:"type"`
	Description *string     `json:"description"`
}

func (s *Server) updateRule(c *fiber.Ctx) error {
	var req updateRuleRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, 400, "INVALID_ARGUMENT", fmt.Sprintf("invalid request body: %v", err))
	}

	r, err := s.store.UpdateRule(c.Params("rule"), store.RuleUpdate{
		Expression:  req.Expression,
		Type:        req.Type,
		Description: req.Description,
	})
	if err != nil {
		return storeError(c, err)
	}
	s.logger.Info("rule updated", "rule", r.Name, "revision", r.RevisionID)
	return c.JSON(ruleToJSON(r))
}

func (s *Server) deleteRule(c *fiber.Ctx) error {
	name := c.Params("rule")
	if err := s.store.DeleteRule(name); err != nil {
		return storeError(c, err)
	}
	s.logger.Info("rule deleted", "rule", name)
	return c.JSON(fiber.Map{
		"name":    name,
		"deleted": true,
	})
}

// --- Evaluation Handlers ---

func (s *Server) createEvaluation(c *fiber.Ctx) error {
	body, err := decodeBody(c)
	if err != nil {
		return errorResponse(c, 400, "INVALID_ARGUMENT", fmt.Sprintf("invalid request body: %v", err))
	}
	vars, err := variables(body)
	if err != nil {
		return errorResponse(c, 400, "INVALID_ARGUMENT", err.Error())
	}

	ev, err := s.store.Evaluate(c.UserContext(), c.Params("rule"), vars)
	if err != nil {
		return storeError(c, err)
	}
	if ev.State == store.EvaluationFailed {
		s.logger.Warn("rule evaluation failed", "rule", ev.Rule, "evaluation", ev.Name, "error", ev.Error)
	}
	return c.JSON(evaluationToJSON(ev))
}

func (s *Server) listEvaluations(c *fiber.Ctx) error {
	list := s.store.ListEvaluations(c.Params("rule"))

	items := make([]fiber.Map, len(list))
	for i, ev := range list {
		items[i] = evaluationToJSON(ev)
	}

	return c.JSON(fiber.Map{
		"evaluations": items,
	})
}

func (s *Server) getEvaluation(c *fiber.Ctx) error {
	ev, err := s.store.GetEvaluation(c.Params("evaluation"))
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(evaluationToJSON(ev))
}

// --- Directory Loading ---

// WatchDir loads every .yaml and .yml rule file in dir into the store. Files
// that fail to load are skipped; their errors are returned joined, after
// every other file has been loaded.
func (s *Server) WatchDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("reading rules directory: %w", err)
	}

	loaded := 0
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := filepath.Ext(name)
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		rs, err := rules.LoadFile(filepath.Join(dir, name), s.store.ExprOptions()...)
		if err != nil {
			s.logger.Warn("could not load rule file", "file", name, "error", err)
			errs = append(errs, err)
			continue
		}

		n := s.store.LoadRuleSet(rs, name)
		loaded += n
		s.logger.Info("loaded rule file", "file", name, "rules", n)
	}

	s.logger.Info("rules directory loaded", "dir", dir, "rules", loaded, "failed_files", len(errs))
	return loaded, errors.Join(errs...)
}

// --- Helpers ---

// decodeBody reads the JSON request body as a protobuf Struct. An empty
// body is an empty struct.
func decodeBody(c *fiber.Ctx) (*structpb.Struct, error) {
	body := &structpb.Struct{}
	if len(c.Body()) == 0 {
		return body, nil
	}
	if err := protojson.Unmarshal(c.Body(), body); err != nil {
		return nil, err
	}
	return body, nil
}

func variables(body *structpb.Struct) (map[string]types.Value, error) {
	raw, ok := body.GetFields()["variables"]
	if !ok {
		return nil, nil
	}
	if _, isNull := raw.GetKind().(*structpb.Value_NullValue); isNull {
		return nil, nil
	}
	vars := raw.GetStructValue()
	if vars == nil {
		return nil, fmt.Errorf("variables must be an object")
	}
	return types.FromProtoStruct(vars)
}

func errorResponse(c *fiber.Ctx, code int, status, message string) error {
	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    code,
			"message": message,
			"status":  status,
		},
	})
}

func evaluationError(c *fiber.Ctx, err error) error {
	return errorResponse(c, 400, "FAILED_PRECONDITION", err.Error())
}

func storeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return errorResponse(c, 404, "NOT_FOUND", err.Error())
	case errors.Is(err, store.ErrAlreadyExists):
		return errorResponse(c, 409, "ALREADY_EXISTS", err.Error())
	case types.IsSyntaxError(err), errors.Is(err, rules.ErrInvalidRule):
		return errorResponse(c, 400, "INVALID_ARGUMENT", err.Error())
	default:
		return errorResponse(c, 500, "INTERNAL", err.Error())
	}
}

// jsonValue converts a value for JSON output. Non-finite doubles have no
// JSON number form and are rendered as strings.
func jsonValue(v types.Value) interface{} {
	switch v.Type() {
	case types.TypeDouble:
		f := v.AsDouble()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return types.FormatDouble(f)
		}
		return f
	case types.TypeCollection, types.TypeArray:
		items := v.AsList()
		out := make([]interface{}, len(items))
		for i, item := range items {
			out[i] = jsonValue(item)
		}
		return out
	default:
		return v.ToGoValue()
	}
}

func ruleToJSON(r *store.Rule) fiber.Map {
	return fiber.Map{
		"name":        r.Name,
		"expression":  r.Expression,
		"type":        r.Type,
		"description": r.Description,
		"source":      r.Source,
		"revisionId":  r.RevisionID,
		"createTime":  r.CreateTime.Format(time.RFC3339),
		"updateTime":  r.UpdateTime.Format(time.RFC3339),
	}
}

func evaluationToJSON(ev *store.Evaluation) fiber.Map {
	result := fiber.Map{
		"name":           ev.Name,
		"rule":           ev.Rule,
		"ruleRevisionId": ev.RuleRevisionID,
		"state":          ev.State,
		"startTime":      ev.StartTime.Format(time.RFC3339Nano),
		"endTime":        ev.EndTime.Format(time.RFC3339Nano),
	}

	if ev.State == store.EvaluationSucceeded {
		result["result"] = jsonValue(ev.Result)
	}
	if ev.Error != "" {
		result["error"] = fiber.Map{
			"message": ev.Error,
		}
	}
	if len(ev.Variables) > 0 {
		vars := make(fiber.Map, len(ev.Variables))
		for k, v := range ev.Variables {
			vars[k] = jsonValue(v)
		}
		result["variables"] = vars
	}

	return result
}
