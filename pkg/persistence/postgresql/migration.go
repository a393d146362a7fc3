package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Workflow definitions
			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				entity_name VARCHAR(255) NOT NULL,
				primary_key_field VARCHAR(255) NOT NULL,
				field_types JSONB,
				disabled BOOLEAN NOT NULL DEFAULT FALSE,
				reminder_interval INTEGER NOT NULL DEFAULT 0,
				reminder_uom VARCHAR(50) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE workflow_activities (
				id VARCHAR(255) NOT NULL,
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				position INTEGER NOT NULL,
				name VARCHAR(255) NOT NULL DEFAULT '',
				type VARCHAR(50) NOT NULL,
				data JSONB,
				PRIMARY KEY (workflow_id, id)
			);

			CREATE TABLE workflow_transitions (
				id VARCHAR(255) NOT NULL,
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				position INTEGER NOT NULL,
				from_activity_id VARCHAR(255) NOT NULL,
				from_port VARCHAR(50) NOT NULL,
				to_activity_id VARCHAR(255) NOT NULL,
				to_port VARCHAR(50) NOT NULL DEFAULT '',
				PRIMARY KEY (workflow_id, id)
			);

			CREATE INDEX idx_workflow_transitions_from ON workflow_transitions(workflow_id, from_activity_id, from_port);

			CREATE TABLE workflow_variables (
				id VARCHAR(255) NOT NULL,
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				position INTEGER NOT NULL,
				name VARCHAR(255) NOT NULL,
				type VARCHAR(50) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				default_value TEXT NOT NULL DEFAULT '',
				PRIMARY KEY (workflow_id, id)
			);

			CREATE TABLE workflow_initiators (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				user_group_id VARCHAR(255) NOT NULL,
				from_date TIMESTAMP WITH TIME ZONE NOT NULL,
				thru_date TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflow_initiators_workflow_id ON workflow_initiators(workflow_id);
		`,
		2: `
			-- Workflow instances, their tasks, variables and audit events
			CREATE TABLE instances (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id),
				primary_key_value VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL,
				activity_id VARCHAR(255),
				activity_executed BOOLEAN NOT NULL DEFAULT FALSE,
				outgoing_port VARCHAR(50) NOT NULL DEFAULT '',
				visit INTEGER NOT NULL DEFAULT 0,
				timeout_at TIMESTAMP WITH TIME ZONE,
				owner VARCHAR(255),
				owner_expires_at TIMESTAMP WITH TIME ZONE,
				input_user_id VARCHAR(255) NOT NULL DEFAULT '',
				result_code VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_instances_workflow_key ON instances(workflow_id, primary_key_value);
			CREATE INDEX idx_instances_status_timeout ON instances(status, timeout_at);

			CREATE TABLE tasks (
				id VARCHAR(255) PRIMARY KEY,
				instance_id VARCHAR(255) NOT NULL REFERENCES instances(id) ON DELETE CASCADE,
				activity_id VARCHAR(255) NOT NULL,
				visit INTEGER NOT NULL DEFAULT 0,
				assigned_user_id VARCHAR(255) NOT NULL,
				type VARCHAR(50) NOT NULL,
				variable_id VARCHAR(255) NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL,
				summary TEXT NOT NULL DEFAULT '',
				description TEXT NOT NULL DEFAULT '',
				value TEXT NOT NULL DEFAULT '',
				remark TEXT NOT NULL DEFAULT '',
				completed_at TIMESTAMP WITH TIME ZONE,
				reminded_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_tasks_instance_visit ON tasks(instance_id, activity_id, visit);
			CREATE INDEX idx_tasks_assigned_user_status ON tasks(assigned_user_id, status);

			CREATE TABLE instance_variables (
				id VARCHAR(255) NOT NULL,
				instance_id VARCHAR(255) NOT NULL REFERENCES instances(id) ON DELETE CASCADE,
				variable_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				type VARCHAR(50) NOT NULL,
				value TEXT NOT NULL DEFAULT '',
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (instance_id, variable_id)
			);

			CREATE TABLE instance_events (
				seq BIGSERIAL PRIMARY KEY,
				id VARCHAR(255) NOT NULL,
				instance_id VARCHAR(255) NOT NULL REFERENCES instances(id) ON DELETE CASCADE,
				type VARCHAR(50) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				is_error BOOLEAN NOT NULL DEFAULT FALSE,
				user_id VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_instance_events_instance_id ON instance_events(instance_id, created_at);
		`,
		3: `
			-- Tracked entities and the user directory
			CREATE TABLE entities (
				name VARCHAR(255) NOT NULL,
				key VARCHAR(255) NOT NULL,
				status_id VARCHAR(255) NOT NULL DEFAULT '',
				fields JSONB,
				PRIMARY KEY (name, key)
			);

			CREATE TABLE users (
				id VARCHAR(255) PRIMARY KEY,
				username VARCHAR(255) NOT NULL DEFAULT '',
				email VARCHAR(255) NOT NULL DEFAULT '',
				phone VARCHAR(255) NOT NULL DEFAULT ''
			);

			CREATE TABLE group_members (
				id BIGSERIAL PRIMARY KEY,
				group_id VARCHAR(255) NOT NULL,
				user_id VARCHAR(255) NOT NULL,
				from_date TIMESTAMP WITH TIME ZONE NOT NULL,
				thru_date TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_group_members_group_id ON group_members(group_id);
		`,
	}
}
