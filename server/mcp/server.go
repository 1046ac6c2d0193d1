package mcp

import (
	"github.com/kasuganosora/orientsql/pkg/config"
	"github.com/kasuganosora/orientsql/pkg/orientdb"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// EndpointPath is the Streamable HTTP endpoint
const EndpointPath = "/mcp"

// Server is the MCP protocol server
type Server struct {
	deps   *ToolDeps
	cfg    config.MCPConfig
	logger orientdb.Logger
}

// NewServer creates a new MCP server
func NewServer(deps *ToolDeps, cfg config.MCPConfig) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = orientdb.NewNoOpLogger()
	}
	return &Server{deps: deps, cfg: cfg, logger: logger}
}

// MCPServer builds the protocol server with all tools registered
func (s *Server) MCPServer() *mcpserver.MCPServer {
	mcpSrv := mcpserver.NewMCPServer(
		s.cfg.Name,
		s.cfg.Version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithRecovery(),
	)

	queryTool := mcp.NewTool("query",
		mcp.WithDescription("Execute a SQL command against OrientDB. SELECT and other reads return rows; INSERT, UPDATE and DELETE return the affected row count; CREATE, ALTER and DROP return OK. Use ? placeholders with args."),
		mcp.WithString("sql", mcp.Description("The SQL command to execute"), mcp.Required()),
		mcp.WithArray("args", mcp.Description("Optional positional values for ? placeholders")),
	)

	listTablesTool := mcp.NewTool("list_tables",
		mcp.WithDescription("List all classes in the database"),
	)

	describeTableTool := mcp.NewTool("describe_table",
		mcp.WithDescription("List the properties of a class, including the synthetic @rid column"),
		mcp.WithString("table", mcp.Description("The class name"), mcp.Required()),
	)

	listIndexesTool := mcp.NewTool("list_indexes",
		mcp.WithDescription("List the indexes of a class"),
		mcp.WithString("table", mcp.Description("The class name"), mcp.Required()),
	)

	mcpSrv.AddTool(queryTool, s.deps.HandleQuery)
	mcpSrv.AddTool(listTablesTool, s.deps.HandleListTables)
	mcpSrv.AddTool(describeTableTool, s.deps.HandleDescribeTable)
	mcpSrv.AddTool(listIndexesTool, s.deps.HandleListIndexes)

	if s.deps.Monitor != nil {
		statsTool := mcp.NewTool("server_stats",
			mcp.WithDescription("Command metrics, slow command log and metadata cache statistics"),
		)
		mcpSrv.AddTool(statsTool, s.deps.HandleStats)
	}
	return mcpSrv
}

// Start starts the MCP server (blocking)
func (s *Server) Start() error {
	mcpSrv := s.MCPServer()

	if s.cfg.Transport == "http" {
		httpServer := mcpserver.NewStreamableHTTPServer(mcpSrv, mcpserver.WithEndpointPath(EndpointPath))
		s.logger.Info("[MCP] 启动 MCP 服务器: %s%s", s.cfg.Addr, EndpointPath)
		return httpServer.Start(s.cfg.Addr)
	}

	s.logger.Info("[MCP] 启动 MCP 服务器: stdio")
	return mcpserver.ServeStdio(mcpSrv)
}
